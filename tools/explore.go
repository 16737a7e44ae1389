package tools

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"fetchr/content"
)

// view_product_image

type ViewProductImageInput struct {
	Explanation string `json:"explanation" jsonschema:"Explain why you want to view this product image in depth. What information are you trying to get from the image? Why is it important to you?"`
	ProductID   string `json:"product_id" jsonschema:"The id of the product to view"`
}

type ViewProductImageRequest struct {
	content.RequestBase
	ProductID   string `json:"productId"`
	Explanation string `json:"explanation"`
}

type ViewProductImageResponse struct {
	content.ResponseBase
	ImageURL     string `json:"imageUrl"`
	EncodedImage string `json:"encodedImage"`
}

func NewViewProductImageResponse(imageURL string, image []byte) *ViewProductImageResponse {
	return &ViewProductImageResponse{
		ResponseBase: responseBase(ViewProductImage),
		ImageURL:     imageURL,
		EncodedImage: base64.StdEncoding.EncodeToString(image),
	}
}

// Render returns the product image inline.
func (r *ViewProductImageResponse) Render(content.Provider) content.ToolOutput {
	data, err := base64.StdEncoding.DecodeString(r.EncodedImage)
	if err != nil || len(data) == 0 {
		return content.ToolOutput{Text: fmt.Sprintf("Image for %s could not be loaded", r.ImageURL), IsError: true}
	}
	return content.ToolOutput{Images: []*content.Image{{Data: data}}}
}

func viewProductImageTool() (*Definition, error) {
	return define(ViewProductImage, "View the image for a product",
		func(in ViewProductImageInput) content.RequestPayload {
			return &ViewProductImageRequest{
				RequestBase: requestBase(ViewProductImage),
				ProductID:   in.ProductID,
				Explanation: in.Explanation,
			}
		},
		requestOf[ViewProductImageRequest](),
		responseOf[ViewProductImageResponse](),
		nil,
	)
}

// message_user

type MessageUserInput struct {
	Message            string   `json:"message" jsonschema:"The message to send to the user"`
	Blocking           bool     `json:"blocking" jsonschema:"Whether the tool should wait for a response from the user or continue execution"`
	SuggestedResponses []string `json:"suggestedResponses,omitempty" jsonschema:"List of predefined response options that the user can select from."`
}

type MessageUserRequest struct {
	content.RequestBase
	MessageUserInput
}

type MessageUserResponse struct {
	content.ResponseBase
	Message string `json:"message"`
}

func NewMessageUserResponse(message string) *MessageUserResponse {
	return &MessageUserResponse{ResponseBase: responseBase(MessageUser), Message: message}
}

func (r *MessageUserResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Message}
}

func messageUserTool() (*Definition, error) {
	return define(MessageUser, "Message the user with a message",
		func(in MessageUserInput) content.RequestPayload {
			// Offering canned replies means the user is expected to answer.
			if len(in.SuggestedResponses) > 0 {
				in.Blocking = true
			}
			return &MessageUserRequest{RequestBase: requestBase(MessageUser), MessageUserInput: in}
		},
		requestOf[MessageUserRequest](),
		responseOf[MessageUserResponse](),
		nil,
	)
}

// suggest_products_to_user

type SearchQuery struct {
	Query       string `json:"query" jsonschema:"The type of product to search for"`
	Explanation string `json:"explanation" jsonschema:"Explain why you want to search for this product"`
}

type SuggestProductsToUserInput struct {
	SearchQueries []SearchQuery `json:"searchQueries" jsonschema:"The queries used to search for products"`
}

// SuggestionMetadata is attached by the background search to product
// suggesting requests.
type SuggestionMetadata struct {
	RankedProducts   []RankedProduct `json:"rankedProducts"`
	UnrankedProducts []RankedProduct `json:"unrankedProducts"`
}

// SuggestionsFromMetadata decodes the search results attached to p, if any.
func SuggestionsFromMetadata(p content.RequestPayload) (*SuggestionMetadata, error) {
	md := p.Metadata()
	if md == nil {
		return nil, nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	var out SuggestionMetadata
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid suggestion metadata: %w", err)
	}
	for _, list := range [][]RankedProduct{out.RankedProducts, out.UnrankedProducts} {
		for _, rp := range list {
			if rp.Product != nil && rp.Product.HighresWebpURLs == nil {
				rp.Product.HighresWebpURLs = []string{}
			}
		}
	}
	return &out, nil
}

type SuggestProductsToUserRequest struct {
	content.RequestBase
	SuggestProductsToUserInput
}

type SuggestProductsToUserResponse struct {
	content.ResponseBase
	ProductPreferences []ProductPreference `json:"productPreferences"`
}

func NewSuggestProductsToUserResponse(prefs []ProductPreference) *SuggestProductsToUserResponse {
	if prefs == nil {
		prefs = []ProductPreference{}
	}
	return &SuggestProductsToUserResponse{ResponseBase: responseBase(SuggestProductsToUser), ProductPreferences: prefs}
}

// AddProductPreferences appends reactions collected after the result was
// first recorded.
func (r *SuggestProductsToUserResponse) AddProductPreferences(prefs ...ProductPreference) {
	r.ProductPreferences = append(r.ProductPreferences, prefs...)
}

func (r *SuggestProductsToUserResponse) UnmarshalJSON(data []byte) error {
	type plain SuggestProductsToUserResponse
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	if r.ProductPreferences == nil {
		r.ProductPreferences = []ProductPreference{}
	}
	normalizeProducts(r.ProductPreferences)
	return nil
}

func (r *SuggestProductsToUserResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: formatPreferences(r.ProductPreferences, func(p ProductPreference) string {
		s := formatProduct(p.Product)
		if p.PreferenceItem != nil && p.PreferenceItem.Comments != "" {
			s += "\n# My notes on this product:" + p.PreferenceItem.Comments
		}
		return s
	})}
}

func suggestProductsToUserTool() (*Definition, error) {
	return define(SuggestProductsToUser,
		"Suggest products to search for. You will give 1-3 queries to search for the products. The queries should be different from each other (if possible) to cover different styles, colors, categories etc...",
		func(in SuggestProductsToUserInput) content.RequestPayload {
			return &SuggestProductsToUserRequest{RequestBase: requestBase(SuggestProductsToUser), SuggestProductsToUserInput: in}
		},
		requestOf[SuggestProductsToUserRequest](),
		responseOf[SuggestProductsToUserResponse](),
		arrayBounds("searchQueries", 1, 3),
	)
}

// suggest_styles_to_user

type SuggestStylesToUserInput struct {
	StyleQuery string `json:"styleQuery" jsonschema:"The style query to search for"`
}

type SuggestStylesToUserRequest struct {
	content.RequestBase
	SuggestStylesToUserInput
}

// StyleImages returns the attached inspiration images that carry a size.
// Images without one break the clients rendering them.
func (r *SuggestStylesToUserRequest) StyleImages() []StyleImage {
	raw, ok := r.Meta["images"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var images []StyleImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil
	}
	out := images[:0]
	for _, img := range images {
		if img.Width > 0 && img.Height > 0 {
			out = append(out, img)
		}
	}
	return out
}

type SuggestStylesToUserResponse struct {
	content.ResponseBase
	ImagePreferences []StylePreference `json:"imagePreferences"`
}

func NewSuggestStylesToUserResponse(prefs []StylePreference) *SuggestStylesToUserResponse {
	if prefs == nil {
		prefs = []StylePreference{}
	}
	return &SuggestStylesToUserResponse{ResponseBase: responseBase(SuggestStylesToUser), ImagePreferences: prefs}
}

func (r *SuggestStylesToUserResponse) AddImagePreferences(prefs ...StylePreference) {
	r.ImagePreferences = append(r.ImagePreferences, prefs...)
}

// Render lists the liked styles.
func (r *SuggestStylesToUserResponse) Render(content.Provider) content.ToolOutput {
	var sb strings.Builder
	n := 0
	for _, p := range r.ImagePreferences {
		if p.ImagePreferenceItem == nil || p.ImagePreferenceItem.PreferenceType != PreferenceLike {
			continue
		}
		if n == 0 {
			sb.WriteString("# I liked these styles:\n")
		}
		n++
		fmt.Fprintf(&sb, "%d. %s\n", n, p.Style)
	}
	return content.ToolOutput{Text: strings.TrimSpace(sb.String())}
}

func suggestStylesToUserTool() (*Definition, error) {
	return define(SuggestStylesToUser,
		"Suggest different styles of products for the user. You will give a single style query to search for the products (used on Pinterest)",
		func(in SuggestStylesToUserInput) content.RequestPayload {
			return &SuggestStylesToUserRequest{RequestBase: requestBase(SuggestStylesToUser), SuggestStylesToUserInput: in}
		},
		requestOf[SuggestStylesToUserRequest](),
		responseOf[SuggestStylesToUserResponse](),
		nil,
	)
}

// post_filter_products has no result of its own; callers answer it with the
// common response types.

type PostFilterProductsInput struct {
	ProductIDs []string `json:"productIds" jsonschema:"The product ids to show the user"`
}

type PostFilterProductsRequest struct {
	content.RequestBase
	PostFilterProductsInput
}

func postFilterProductsTool() (*Definition, error) {
	return define(PostFilterProducts, "Post filter products",
		func(in PostFilterProductsInput) content.RequestPayload {
			return &PostFilterProductsRequest{RequestBase: requestBase(PostFilterProducts), PostFilterProductsInput: in}
		},
		requestOf[PostFilterProductsRequest](),
		nil,
		nil,
	)
}

// finish_finding_product

type FinishFindingProductInput struct {
	UserRequirements []string `json:"user_requirements" jsonschema:"What are the user's requirements for the product they want? Use at least 3 requirements"`
	Message          string   `json:"message" jsonschema:"The message to send to the user (alongside a \"Place Order\" and a \"Not Yet\" button underneath the message)"`
}

type FinishFindingProductRequest struct {
	content.RequestBase
	UserRequirements []string `json:"userRequirements"`
	Message          string   `json:"message"`
}

type FinishFindingProductResponse struct {
	content.ResponseBase
	Message string `json:"message"`
}

func NewFinishFindingProductResponse(message string) *FinishFindingProductResponse {
	return &FinishFindingProductResponse{ResponseBase: responseBase(FinishFindingProduct), Message: message}
}

func (r *FinishFindingProductResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Message}
}

func finishFindingProductTool() (*Definition, error) {
	return define(FinishFindingProduct, "Finish searching",
		func(in FinishFindingProductInput) content.RequestPayload {
			reqs := in.UserRequirements
			if reqs == nil {
				reqs = []string{}
			}
			return &FinishFindingProductRequest{
				RequestBase:      requestBase(FinishFindingProduct),
				UserRequirements: reqs,
				Message:          in.Message,
			}
		},
		requestOf[FinishFindingProductRequest](),
		responseOf[FinishFindingProductResponse](),
		nil,
	)
}

// generate_title

type GenerateTitleInput struct {
	GeneratedTitle string `json:"generated_title" jsonschema:"The generated title for the shopping request"`
}

type GenerateTitleRequest struct {
	content.RequestBase
	GenerateTitleInput
}

type GenerateTitleResponse struct {
	content.ResponseBase
	Title string `json:"title"`
}

func NewGenerateTitleResponse(title string) *GenerateTitleResponse {
	return &GenerateTitleResponse{ResponseBase: responseBase(GenerateTitle), Title: title}
}

func (r *GenerateTitleResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: r.Title}
}

func generateTitleTool() (*Definition, error) {
	return define(GenerateTitle, "Generate a short title (2-5 words) for a shopping request",
		func(in GenerateTitleInput) content.RequestPayload {
			return &GenerateTitleRequest{RequestBase: requestBase(GenerateTitle), GenerateTitleInput: in}
		},
		requestOf[GenerateTitleRequest](),
		responseOf[GenerateTitleResponse](),
		nil,
	)
}

// explore_different_styles

type ExploreDifferentStylesInput struct {
	StyleQueries []string `json:"styleQueries" jsonschema:"The style queries to search for"`
}

type ExploreDifferentStylesRequest struct {
	content.RequestBase
	ExploreDifferentStylesInput
}

type ExploreDifferentStylesResponse struct {
	content.ResponseBase
	ProductPreferences []ProductPreference `json:"productPreferences"`
}

func NewExploreDifferentStylesResponse(prefs []ProductPreference) *ExploreDifferentStylesResponse {
	if prefs == nil {
		prefs = []ProductPreference{}
	}
	return &ExploreDifferentStylesResponse{ResponseBase: responseBase(ExploreDifferentStyles), ProductPreferences: prefs}
}

func (r *ExploreDifferentStylesResponse) AddProductPreferences(prefs ...ProductPreference) {
	r.ProductPreferences = append(r.ProductPreferences, prefs...)
}

func (r *ExploreDifferentStylesResponse) UnmarshalJSON(data []byte) error {
	type plain ExploreDifferentStylesResponse
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	if r.ProductPreferences == nil {
		r.ProductPreferences = []ProductPreference{}
	}
	normalizeProducts(r.ProductPreferences)
	return nil
}

func (r *ExploreDifferentStylesResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: formatPreferences(r.ProductPreferences, func(p ProductPreference) string {
		var id, name, desc, notes string
		if p.PreferenceItem != nil {
			id = p.PreferenceItem.ItemID
			if p.PreferenceItem.Comments != "" {
				notes = "\nMy note on this product: " + p.PreferenceItem.Comments
			}
		}
		if p.Product != nil {
			name = p.Product.Name
			desc = p.Product.FullGeneratedDescription
		}
		return fmt.Sprintf("%s - %s\n%s%s", id, name, desc, notes)
	})}
}

func exploreDifferentStylesTool() (*Definition, error) {
	return define(ExploreDifferentStyles,
		"Explore different styles of products for the user. You will give 5-10 style queries to search for the products. The queries should be different from each other (if possible) to cover different styles, colors, categories etc...",
		func(in ExploreDifferentStylesInput) content.RequestPayload {
			return &ExploreDifferentStylesRequest{RequestBase: requestBase(ExploreDifferentStyles), ExploreDifferentStylesInput: in}
		},
		requestOf[ExploreDifferentStylesRequest](),
		responseOf[ExploreDifferentStylesResponse](),
		nil,
	)
}

// filter_product is answered outside the tool result path.

type FilterProductInput struct {
	Keep bool `json:"keep" jsonschema:"Whether to keep the product or not"`
}

type FilterProductRequest struct {
	content.RequestBase
	FilterProductInput
}

func filterProductTool() (*Definition, error) {
	return define(FilterProduct, "Filter a product",
		func(in FilterProductInput) content.RequestPayload {
			return &FilterProductRequest{RequestBase: requestBase(FilterProduct), FilterProductInput: in}
		},
		requestOf[FilterProductRequest](),
		nil,
		nil,
	)
}

// place_order

type PlaceOrderInput struct {
	OrderID string `json:"orderId" jsonschema:"The order id to place"`
}

type PlaceOrderRequest struct {
	content.RequestBase
	PlaceOrderInput
}

type PlaceOrderResponse struct {
	content.ResponseBase
}

func NewPlaceOrderResponse() *PlaceOrderResponse {
	return &PlaceOrderResponse{ResponseBase: responseBase(PlaceOrder)}
}

func (r *PlaceOrderResponse) Render(content.Provider) content.ToolOutput {
	return content.ToolOutput{Text: "Order placed successfully"}
}

func placeOrderTool() (*Definition, error) {
	return define(PlaceOrder, "Place an order",
		func(in PlaceOrderInput) content.RequestPayload {
			return &PlaceOrderRequest{RequestBase: requestBase(PlaceOrder), PlaceOrderInput: in}
		},
		requestOf[PlaceOrderRequest](),
		responseOf[PlaceOrderResponse](),
		nil,
	)
}
