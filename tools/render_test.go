package tools

import (
	"strings"
	"testing"

	"fetchr/content"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name      string
		payload   content.ResponsePayload
		want      string
		wantError bool
	}{
		{
			name:    "present products",
			payload: NewPresentProductsResponse(),
			want:    "Products presented successfully",
		},
		{
			name:    "place order",
			payload: NewPlaceOrderResponse(),
			want:    "Order placed successfully",
		},
		{
			name:      "error",
			payload:   NewErrorResponse("search backend unavailable"),
			want:      "search backend unavailable",
			wantError: true,
		},
		{
			name:    "non blocking",
			payload: NewExecutingNonBlockingResponse(),
			want:    "Tool executed. Continue",
		},
		{
			name:    "stylist suggestion accepted",
			payload: NewSendStylistSuggestionsResponse("t1", "smaller please", &AcceptedProduct{ProductID: "p-9", Size: "S"}),
			want:    "Modification Request: smaller please\nAccepted Product ID: p-9\n Size: S",
		},
		{
			name: "liked styles only",
			payload: NewSuggestStylesToUserResponse([]StylePreference{
				{Style: "boho", ImagePreferenceItem: &ImagePreferenceItem{PreferenceType: PreferenceLike}},
				{Style: "grunge", ImagePreferenceItem: &ImagePreferenceItem{PreferenceType: PreferenceDislike}},
				{Style: "minimal", ImagePreferenceItem: &ImagePreferenceItem{PreferenceType: PreferenceLike}},
			}),
			want: "# I liked these styles:\n1. boho\n2. minimal",
		},
		{
			name:    "empty product preferences",
			payload: NewSuggestProductsToUserResponse(nil),
			want:    "",
		},
		{
			name:    "product copy is trimmed",
			payload: NewExtractProductCopyResponse("t2", "  Soft and easy  \n"),
			want:    "Soft and easy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.payload.Render(content.ProviderAnthropic)
			if out.Text != tt.want {
				t.Errorf("expected %q, got %q", tt.want, out.Text)
			}
			if out.IsError != tt.wantError {
				t.Errorf("expected IsError=%v, got %v", tt.wantError, out.IsError)
			}
		})
	}
}

func TestRenderFindProductsShowsTopTwo(t *testing.T) {
	resp := NewFindProductsResponse([]QueryResult{{
		Query: "linen shirt",
		ID:    "q1",
		Products: []Product{
			{ID: "a", Name: "Shirt A", BrandName: "Acme"},
			{ID: "b", Name: "Shirt B", BrandName: "Acme", SubBrandName: "Lab"},
			{ID: "c", Name: "Shirt C", BrandName: "Acme"},
		},
	}})

	text := resp.Render(content.ProviderOpenAI).Text
	if !strings.HasPrefix(text, `## Search Query q1: "linen shirt"`) {
		t.Errorf("unexpected heading: %q", text)
	}
	if !strings.Contains(text, "# Product: Shirt B - Acme (Lab)") {
		t.Errorf("expected sub brand in output: %q", text)
	}
	if strings.Contains(text, "Shirt C") {
		t.Errorf("expected only two products, got %q", text)
	}
}

func TestRenderProductPreferencesGroups(t *testing.T) {
	resp := NewSuggestProductsToUserResponse([]ProductPreference{
		{Product: &Product{ID: "d", Name: "Boots"}, PreferenceItem: &PreferenceItem{PreferenceType: PreferenceDislike}},
		{Product: &Product{ID: "s", Name: "Scarf"}, PreferenceItem: &PreferenceItem{PreferenceType: PreferenceSuperlike, Comments: "love the color"}},
	})

	text := resp.Render(content.ProviderAnthropic).Text
	loved := strings.Index(text, "# I loved these products:")
	disliked := strings.Index(text, "# I disliked these products:")
	if loved != 0 || disliked < loved {
		t.Errorf("expected loved before disliked, got %q", text)
	}
	if !strings.Contains(text, "# My notes on this product:love the color") {
		t.Errorf("expected comments, got %q", text)
	}
}

func TestRenderViewProductImage(t *testing.T) {
	out := NewViewProductImageResponse("https://cdn.example.com/p.jpg", []byte{1, 2, 3}).Render(content.ProviderAnthropic)
	if len(out.Images) != 1 || len(out.Images[0].Data) != 3 {
		t.Fatalf("expected one inline image, got %+v", out)
	}

	broken := &ViewProductImageResponse{ImageURL: "x", EncodedImage: "%%%"}
	if !broken.Render(content.ProviderAnthropic).IsError {
		t.Error("expected undecodable image to render as error")
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		payload content.ResponsePayload
		want    bool
	}{
		{"outside", NewExecutingOutsideResponse(), true},
		{"non blocking", NewExecutingNonBlockingResponse(), true},
		{"raw outside", &content.RawResponse{Fields: map[string]any{"fetchrLLMToolType": TypeExecutingOutside}}, true},
		{"error", NewErrorResponse("boom"), false},
		{"real result", NewPlaceOrderResponse(), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlaceholder(tt.payload); got != tt.want {
				t.Errorf("IsPlaceholder() = %v, want %v", got, tt.want)
			}
		})
	}
}
