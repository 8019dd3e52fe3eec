package xyapi

import "context"

// Tag is one entry of the host's tag catalog.
type Tag struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// TagFilter narrows a catalog by exact, case-sensitive match. Empty fields
// match everything.
type TagFilter struct {
	ID    string
	Title string
}

// Match reports whether tag passes the filter.
func (f TagFilter) Match(tag Tag) bool {
	if f.ID != "" && tag.ID != f.ID {
		return false
	}
	if f.Title != "" && tag.Title != f.Title {
		return false
	}
	return true
}

// GetTags fetches the full tag catalog.
func (c *Client) GetTags(ctx context.Context) ([]Tag, error) {
	var out struct {
		Rows []Tag `json:"rows"`
	}
	if err := c.getJSON(ctx, "get tags", c.paths.GetTags, nil, &out); err != nil {
		return nil, err
	}
	if out.Rows == nil {
		out.Rows = []Tag{}
	}
	return out.Rows, nil
}

// FilterTags returns the tags in catalog that match f.
func FilterTags(catalog []Tag, f TagFilter) []Tag {
	out := make([]Tag, 0, len(catalog))
	for _, tag := range catalog {
		if f.Match(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// ResolveTag finds a tag by title first, then by id.
func ResolveTag(catalog []Tag, name string) (Tag, bool) {
	for _, tag := range catalog {
		if tag.Title == name {
			return tag, true
		}
	}
	for _, tag := range catalog {
		if tag.ID == name {
			return tag, true
		}
	}
	return Tag{}, false
}
