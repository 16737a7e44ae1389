package tools

import (
	"fmt"
	"strings"

	"fetchr/content"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool names.
const (
	FindProducts           = "find_products"
	PresentProducts        = "present_products"
	ViewProductImage       = "view_product_image"
	MessageUser            = "message_user"
	SuggestProductsToUser  = "suggest_products_to_user"
	SuggestStylesToUser    = "suggest_styles_to_user"
	PostFilterProducts     = "post_filter_products"
	FinishFindingProduct   = "finish_finding_product"
	GenerateTitle          = "generate_title"
	SendStylistSuggestions = "send_stylist_suggestions"
	ExtractProductCopy     = "extract_product_copy"
	ExploreDifferentStyles = "explore_different_styles"
	FilterProduct          = "filter_product"
	PlaceOrder             = "place_order"
)

// productTools builds every tool definition of the product agents.
func productTools() ([]*Definition, error) {
	builders := []func() (*Definition, error){
		findProductsTool,
		presentProductsTool,
		viewProductImageTool,
		messageUserTool,
		suggestProductsToUserTool,
		suggestStylesToUserTool,
		postFilterProductsTool,
		finishFindingProductTool,
		generateTitleTool,
		sendStylistSuggestionsTool,
		extractProductCopyTool,
		exploreDifferentStylesTool,
		filterProductTool,
		placeOrderTool,
	}
	defs := make([]*Definition, 0, len(builders))
	for _, b := range builders {
		d, err := b()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func requestBase(name string) content.RequestBase {
	return content.RequestBase{Type: name}
}

func responseBase(name string) content.ResponseBase {
	return content.ResponseBase{Type: name}
}

// arrayBounds sets item count limits on an array property.
func arrayBounds(prop string, lo, hi int) func(*jsonschema.Schema) {
	return func(s *jsonschema.Schema) {
		p := s.Properties[prop]
		if p == nil {
			return
		}
		if lo > 0 {
			p.MinItems = jsonschema.Ptr(lo)
		}
		if hi > 0 {
			p.MaxItems = jsonschema.Ptr(hi)
		}
	}
}

// find_products

type FindProductsInput struct {
	SearchQueries []string `json:"searchQueries" jsonschema:"The queries used to search for products that will be entered into the vector database"`
}

type FindProductsRequest struct {
	content.RequestBase
	FindProductsInput
}

// QueryResult is the outcome of one search query.
type QueryResult struct {
	Query    string    `json:"query"`
	ID       string    `json:"id"`
	Products []Product `json:"products"`
}

type FindProductsResponse struct {
	content.ResponseBase
	QueryResults []QueryResult `json:"queryResults"`
}

func NewFindProductsResponse(results []QueryResult) *FindProductsResponse {
	if results == nil {
		results = []QueryResult{}
	}
	return &FindProductsResponse{ResponseBase: responseBase(FindProducts), QueryResults: results}
}

// Render shows the top two products of each query.
func (r *FindProductsResponse) Render(content.Provider) content.ToolOutput {
	sections := make([]string, 0, len(r.QueryResults))
	for _, qr := range r.QueryResults {
		top := qr.Products
		if len(top) > 2 {
			top = top[:2]
		}
		formatted := make([]string, 0, len(top))
		for i := range top {
			formatted = append(formatted, formatProduct(&top[i]))
		}
		sections = append(sections, fmt.Sprintf("## Search Query %s: %q\n\n%s", qr.ID, qr.Query, strings.Join(formatted, "\n\n")))
	}
	return content.ToolOutput{Text: strings.Join(sections, "\n\n---\n\n")}
}

func findProductsTool() (*Definition, error) {
	return define(FindProducts,
		"Find products to search for. You will give 1-5 queries to search for the products. The queries should be different from each other (if possible) to cover different styles, colors, categories etc... The top 2 results from each query will be shown to you (out of 6).",
		func(in FindProductsInput) content.RequestPayload {
			return &FindProductsRequest{RequestBase: requestBase(FindProducts), FindProductsInput: in}
		},
		requestOf[FindProductsRequest](),
		responseOf[FindProductsResponse](),
		arrayBounds("searchQueries", 1, 5),
	)
}

// present_products

type PresentProductsInput struct {
	IDs               []string `json:"ids" jsonschema:"1-3 IDs of the search queries to present. These are presented in order, so place the most relevant results first"`
	SuggestedSearches []string `json:"suggested_searches" jsonschema:"1-8 suggested queries to present to the user for further exploration."`
	Response          string   `json:"response" jsonschema:"A response to the user. It could be a clarifying question or a statement. You have very limited space"`
	Category          string   `json:"category" jsonschema:"The category of the products you are presenting. This should be 1-2 words and will be shown to the user at the top of the screen."`
}

type PresentProductsRequest struct {
	content.RequestBase
	PresentProductsInput
}

type PresentProductsResponse struct {
	content.ResponseBase
}

func NewPresentProductsResponse() *PresentProductsResponse {
	return &PresentProductsResponse{ResponseBase: responseBase(PresentProducts)}
}

func (r *PresentProductsResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: "Products presented successfully"}
}

func presentProductsTool() (*Definition, error) {
	return define(PresentProducts,
		"Present products that you have found in previous calls to the find products tool to users. You can present products using the search query ids. Each search query represents 6 products. Only include search query ids that have results that are relevant to the user's query.",
		func(in PresentProductsInput) content.RequestPayload {
			return &PresentProductsRequest{RequestBase: requestBase(PresentProducts), PresentProductsInput: in}
		},
		requestOf[PresentProductsRequest](),
		responseOf[PresentProductsResponse](),
		func(s *jsonschema.Schema) {
			arrayBounds("ids", 1, 3)(s)
			arrayBounds("suggested_searches", 1, 8)(s)
		},
	)
}
