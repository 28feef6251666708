package content

import (
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

type Category string

const (
	CategoryStats           Category = "stats"
	CategoryFormations      Category = "formations"
	CategorySkills          Category = "skills"
	CategoryProjects        Category = "projects"
	CategoryRecommendations Category = "recommendations"
	CategoryDocuments       Category = "documents"
)

var categories = []Category{
	CategoryStats,
	CategoryFormations,
	CategorySkills,
	CategoryProjects,
	CategoryRecommendations,
	CategoryDocuments,
}

// Categories returns every category in a stable order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory maps a route segment to a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", xerrors.Wrapf(ErrUnknownCategory, "%q", s)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// FileName is the on-disk name of the category's document, shared by the
// live data dir and the published static dir.
func (c Category) FileName() string { return string(c) + ".json" }

func (c Category) String() string { return string(c) }
