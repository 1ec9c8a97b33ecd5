package dispatch

import "strings"

// TemplateData holds the values substituted into message templates
type TemplateData struct {
	CustomerName string
	BusinessName string
	ReviewLink   string
	ServiceType  string
}

// Render substitutes template placeholders. Unknown placeholders are
// left as-is rather than failing the dispatch.
func Render(tmpl string, data TemplateData) string {
	r := strings.NewReplacer(
		"{{customer_name}}", data.CustomerName,
		"{{business_name}}", data.BusinessName,
		"{{review_link}}", data.ReviewLink,
		"{{service_type}}", data.ServiceType,
	)
	return r.Replace(tmpl)
}
