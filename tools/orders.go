package tools

import (
	"fmt"
	"strings"

	"fetchr/content"

	"github.com/google/jsonschema-go/jsonschema"
)

// send_stylist_suggestions

type SuggestionReasoning struct {
	ProductReasoning string `json:"productReasoning" jsonschema:"Why this product is recommended"`
	BrandReasoning   string `json:"brandReasoning" jsonschema:"Why this brand is recommended"`
	SizeReasoning    string `json:"sizeReasoning" jsonschema:"Why this size is recommended"`
}

type MainSuggestion struct {
	ProductID           string              `json:"productId" jsonschema:"The ID of the main product suggestion"`
	RecommendedSize     string              `json:"recommendedSize" jsonschema:"The recommended size for the main product"`
	SuggestionReasoning SuggestionReasoning `json:"suggestionReasoning"`
	CurrentPrice        float64             `json:"currentPrice" jsonschema:"The current price of the main product"`
	OriginalPrice       *float64            `json:"originalPrice,omitempty" jsonschema:"The original price of the main product"`
	ProductCopy         string              `json:"productCopy" jsonschema:"The copy to be shown to the user"`
	UserRequirements    []string            `json:"userRequirements" jsonschema:"The user requirements for the product. Include 1-6 (as many as was covered in the chat)"`
}

type SecondarySuggestion struct {
	ProductID        string   `json:"productId" jsonschema:"The ID of the secondary product suggestion"`
	CurrentPrice     float64  `json:"currentPrice" jsonschema:"The current price of the secondary product"`
	OriginalPrice    *float64 `json:"originalPrice,omitempty" jsonschema:"The original price of the secondary product"`
	UserRequirements []string `json:"userRequirements" jsonschema:"The user requirements for the product. Include 1-6 (as many as was covered in the chat)"`
}

type SendStylistSuggestionsInput struct {
	MainSuggestion       MainSuggestion        `json:"mainSuggestion"`
	SecondarySuggestions []SecondarySuggestion `json:"secondarySuggestions" jsonschema:"Two alternative product suggestions"`
}

type SendStylistSuggestionsRequest struct {
	content.RequestBase
	SendStylistSuggestionsInput
}

// AcceptedProduct is the suggestion the user picked.
type AcceptedProduct struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
}

type SendStylistSuggestionsResponse struct {
	content.ResponseBase
	ModificationRequest string           `json:"modificationRequest,omitempty"`
	AcceptedProduct     *AcceptedProduct `json:"acceptedProduct,omitempty"`
	ToolUseID           string           `json:"toolUseId"`
}

func NewSendStylistSuggestionsResponse(toolUseID, modification string, accepted *AcceptedProduct) *SendStylistSuggestionsResponse {
	return &SendStylistSuggestionsResponse{
		ResponseBase:        responseBase(SendStylistSuggestions),
		ModificationRequest: modification,
		AcceptedProduct:     accepted,
		ToolUseID:           toolUseID,
	}
}

func (r *SendStylistSuggestionsResponse) Render(content.Provider) content.ToolOutput {
	var sb strings.Builder
	if r.ModificationRequest != "" {
		fmt.Fprintf(&sb, "Modification Request: %s\n", r.ModificationRequest)
	}
	if r.AcceptedProduct != nil {
		fmt.Fprintf(&sb, "Accepted Product ID: %s\n Size: %s\n", r.AcceptedProduct.ProductID, r.AcceptedProduct.Size)
	}
	return content.ToolOutput{Text: strings.TrimSpace(sb.String())}
}

func sendStylistSuggestionsTool() (*Definition, error) {
	return define(SendStylistSuggestions, "Send stylist-curated product suggestions to the user",
		func(in SendStylistSuggestionsInput) content.RequestPayload {
			for i := range in.SecondarySuggestions {
				if in.SecondarySuggestions[i].UserRequirements == nil {
					in.SecondarySuggestions[i].UserRequirements = []string{}
				}
			}
			return &SendStylistSuggestionsRequest{RequestBase: requestBase(SendStylistSuggestions), SendStylistSuggestionsInput: in}
		},
		requestOf[SendStylistSuggestionsRequest](),
		responseOf[SendStylistSuggestionsResponse](),
		func(s *jsonschema.Schema) {
			arrayBounds("secondarySuggestions", 2, 2)(s)
		},
	)
}

// extract_product_copy

type ExtractProductCopyInput struct {
	ProductCopy      string   `json:"productCopy" jsonschema:"The copy to be shown to the user"`
	UserRequirements []string `json:"userRequirements" jsonschema:"The user requirements for the product. Include 1-6 (as many as was covered in the chat)"`
}

type ExtractProductCopyRequest struct {
	content.RequestBase
	ExtractProductCopyInput
}

type ExtractProductCopyResponse struct {
	content.ResponseBase
	ProductCopy string `json:"productCopy"`
	ToolUseID   string `json:"toolUseId"`
}

func NewExtractProductCopyResponse(toolUseID, productCopy string) *ExtractProductCopyResponse {
	return &ExtractProductCopyResponse{
		ResponseBase: responseBase(ExtractProductCopy),
		ProductCopy:  productCopy,
		ToolUseID:    toolUseID,
	}
}

func (r *ExtractProductCopyResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: strings.TrimSpace(r.ProductCopy)}
}

func extractProductCopyTool() (*Definition, error) {
	return define(ExtractProductCopy,
		"Generates a short copy explaining why the product, brand, and size is good for the user. Written in second person. Make is also personal as if written by a stylist",
		func(in ExtractProductCopyInput) content.RequestPayload {
			return &ExtractProductCopyRequest{RequestBase: requestBase(ExtractProductCopy), ExtractProductCopyInput: in}
		},
		requestOf[ExtractProductCopyRequest](),
		responseOf[ExtractProductCopyResponse](),
		nil,
	)
}
