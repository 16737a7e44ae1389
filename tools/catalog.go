package tools

import (
	"fmt"
	"strings"
)

// Product is the catalog record shown to the model in search results.
type Product struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	BrandName                string   `json:"brandName"`
	SubBrandName             string   `json:"subBrandName,omitempty"`
	GeneratedDescription     string   `json:"generatedDescription,omitempty"`
	FullGeneratedDescription string   `json:"fullGeneratedDescription,omitempty"`
	Details                  string   `json:"details,omitempty"`
	Colors                   []string `json:"colors,omitempty"`
	Materials                []string `json:"materials,omitempty"`
	HighresWebpURLs          []string `json:"highresWebpUrls"`
}

// PreferenceType is a user's reaction to a suggested item.
type PreferenceType string

const (
	PreferenceSuperlike PreferenceType = "SUPERLIKE"
	PreferenceLike      PreferenceType = "LIKE"
	PreferenceDislike   PreferenceType = "DISLIKE"
	PreferenceMaybe     PreferenceType = "MAYBE"
)

// PreferenceItem records the reaction to one item.
type PreferenceItem struct {
	ItemID         string         `json:"itemId"`
	PreferenceType PreferenceType `json:"preferenceType"`
	Comments       string         `json:"comments,omitempty"`
}

// ProductPreference pairs a product with the user's reaction to it.
type ProductPreference struct {
	Product        *Product        `json:"product,omitempty"`
	PreferenceItem *PreferenceItem `json:"preferenceItem,omitempty"`
}

// ImagePreferenceItem is a reaction to a style image.
type ImagePreferenceItem struct {
	ImageURL       string         `json:"imageUrl"`
	PreferenceType PreferenceType `json:"preferenceType"`
}

// StylePreference pairs a style image reaction with the style it shows.
type StylePreference struct {
	ImagePreferenceItem *ImagePreferenceItem `json:"imagePreferenceItem,omitempty"`
	Style               string               `json:"style"`
}

// StyleImage is an inspiration image attached to suggest_styles_to_user.
type StyleImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// RankedProduct is a search hit attached as request metadata by the
// background search.
type RankedProduct struct {
	Product     *Product `json:"product,omitempty"`
	Score       float64  `json:"score,omitempty"`
	SearchQuery string   `json:"searchQuery,omitempty"`
}

func (p ProductPreference) typ() PreferenceType {
	if p.PreferenceItem == nil {
		return ""
	}
	return p.PreferenceItem.PreferenceType
}

// normalizeProducts fills the fields older rows were stored without.
func normalizeProducts(prefs []ProductPreference) {
	for i := range prefs {
		if p := prefs[i].Product; p != nil && p.HighresWebpURLs == nil {
			p.HighresWebpURLs = []string{}
		}
	}
}

func formatProduct(p *Product) string {
	if p == nil {
		p = &Product{}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Product: %s - %s", p.Name, p.BrandName)
	if p.SubBrandName != "" {
		fmt.Fprintf(&sb, " (%s)", p.SubBrandName)
	}
	fmt.Fprintf(&sb, "\nId: %s\n%s\n", p.ID, p.GeneratedDescription)
	fmt.Fprintf(&sb, "Details: %s\n", p.Details)
	fmt.Fprintf(&sb, "Colors: %s\n", strings.Join(p.Colors, ", "))
	fmt.Fprintf(&sb, "Materials: %s\n", strings.Join(p.Materials, ", "))
	return sb.String()
}

var preferenceHeadings = []struct {
	typ     PreferenceType
	heading string
}{
	{PreferenceSuperlike, "# I loved these products:"},
	{PreferenceLike, "# I liked these products:"},
	{PreferenceDislike, "# I disliked these products:"},
	{PreferenceMaybe, "# I somewhat like these products. But not sure about them:"},
}

// formatPreferences groups prefs by reaction, formatting each with format.
func formatPreferences(prefs []ProductPreference, format func(ProductPreference) string) string {
	var sb strings.Builder
	for _, h := range preferenceHeadings {
		var parts []string
		for _, p := range prefs {
			if p.typ() == h.typ {
				parts = append(parts, format(p))
			}
		}
		if len(parts) == 0 {
			continue
		}
		sb.WriteString(h.heading)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(parts, "\n\n"))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
