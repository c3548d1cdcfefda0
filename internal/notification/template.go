package notification

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"racketoutlet-be/internal/order"
)

// defaultOrderConfirmation is used until an operator stores a template row.
var defaultOrderConfirmation = EmailTemplate{
	Name:    TemplateOrderConfirmation,
	Subject: "Order Confirmation {{.OrderNumber}} - RacketOutlet",
	HTMLContent: `<h2>Thank you for your order, {{.CustomerName}}!</h2>
<p>Order <strong>{{.OrderNumber}}</strong> is confirmed.</p>
<table>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}} x {{.Price}}</td><td>{{.Subtotal}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{.Total}}</strong></p>
<p>Payment: {{.PaymentStatus}}</p>
<p>Shipping to {{.ShippingName}}, {{.ShippingAddress}}</p>`,
	TextContent: strPtr(`Thank you for your order, {{.CustomerName}}!

Order {{.OrderNumber}} is confirmed.
{{range .Items}}
- {{.ProductName}}: {{.Quantity}} x {{.Price}} = {{.Subtotal}}{{end}}

Total: {{.Total}}
Payment: {{.PaymentStatus}}
Shipping to {{.ShippingName}}, {{.ShippingAddress}}
`),
}

// OrderEmailData is what templates may reference.
type OrderEmailData struct {
	CustomerName    string
	OrderNumber     string
	Items           []EmailItem
	Total           string
	PaymentStatus   string
	ShippingName    string
	ShippingAddress string
}

type EmailItem struct {
	ProductName string
	Quantity    int
	Price       string
	Subtotal    string
}

func NewOrderEmailData(o *order.Order, to Recipient) OrderEmailData {
	d := OrderEmailData{
		CustomerName:    to.Name,
		OrderNumber:     o.OrderNumber,
		Total:           o.TotalAmount.StringFixed(2),
		PaymentStatus:   o.PaymentStatus,
		ShippingName:    o.ShippingPersonName,
		ShippingAddress: o.ShippingAddress,
	}
	if d.CustomerName == "" {
		d.CustomerName = to.Email
	}
	for _, it := range o.Items {
		d.Items = append(d.Items, EmailItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price.StringFixed(2),
			Subtotal:    it.Subtotal().StringFixed(2),
		})
	}
	return d
}

// Render produces the subject and both bodies. HTML output is escaped.
func Render(tpl EmailTemplate, data OrderEmailData) (string, Message, error) {
	subject, err := renderText(tpl.Name+":subject", tpl.Subject, data)
	if err != nil {
		return "", Message{}, err
	}

	html, err := htmltemplate.New(tpl.Name).Parse(tpl.HTMLContent)
	if err != nil {
		return "", Message{}, err
	}
	var buf bytes.Buffer
	if err := html.Execute(&buf, data); err != nil {
		return "", Message{}, err
	}
	msg := Message{HTML: buf.String()}

	if tpl.TextContent != nil && *tpl.TextContent != "" {
		msg.Text, err = renderText(tpl.Name+":text", *tpl.TextContent, data)
		if err != nil {
			return "", Message{}, err
		}
	} else {
		msg.Text = msg.HTML
	}

	return subject, msg, nil
}

func renderText(name, body string, data any) (string, error) {
	t, err := template.New(name).Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func strPtr(s string) *string { return &s }
