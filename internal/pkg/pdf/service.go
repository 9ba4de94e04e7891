// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
)

// Service renders purchase receipts as PDF
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

type receiptLine struct {
	Name  string
	Price string
}

type receiptData struct {
	StoreName     string
	StoreURL      string
	ReceiptNumber string
	Date          string
	CustomerEmail string
	Items         []receiptLine
	Subtotal      string
	Discount      string
	CouponCode    string
	Total         string
	Currency      string
}

// GenerateReceipt renders a PDF receipt for a completed checkout session
func (s *Service) GenerateReceipt(sess *checkout.Session) (*bytes.Buffer, error) {
	if sess.Status != checkout.StatusCompleted {
		return nil, fmt.Errorf("receipt is only available for completed sessions")
	}

	date := sess.CreatedAt
	if sess.CompletedAt != nil {
		date = *sess.CompletedAt
	}

	data := receiptData{
		StoreName:     s.config.App.Name,
		StoreURL:      s.config.App.BaseURL,
		ReceiptNumber: fmt.Sprintf("RCPT-%d", sess.ID),
		Date:          date.Format("January 2, 2006"),
		CustomerEmail: sess.CustomerEmail,
		Subtotal:      formatCents(sess.SubtotalCents),
		Discount:      formatCents(sess.DiscountCents),
		CouponCode:    sess.CouponCode,
		Total:         formatCents(sess.TotalCents),
		Currency:      strings.ToUpper(sess.Currency),
	}
	for _, item := range sess.Items {
		data.Items = append(data.Items, receiptLine{
			Name:  item.Name,
			Price: formatCents(item.UnitPriceCents),
		})
	}

	htmlContent, err := s.renderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

func (s *Service) renderHTML(data receiptData) (string, error) {
	tmpl := template.Must(template.New("receipt").Parse(receiptTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #333; margin: 40px; }
  h1 { font-size: 22px; margin-bottom: 0; }
  .meta { color: #777; font-size: 12px; margin-bottom: 30px; }
  table { width: 100%; border-collapse: collapse; margin-top: 20px; }
  th { text-align: left; border-bottom: 2px solid #333; padding: 8px 4px; font-size: 13px; }
  td { border-bottom: 1px solid #ddd; padding: 8px 4px; font-size: 13px; }
  td.amount, th.amount { text-align: right; }
  .totals td { border: none; padding: 4px; }
  .totals .grand { font-weight: bold; border-top: 2px solid #333; }
  .footer { margin-top: 40px; font-size: 11px; color: #999; }
</style>
</head>
<body>
  <h1>{{.StoreName}}</h1>
  <div class="meta">
    Receipt {{.ReceiptNumber}}<br>
    {{.Date}}<br>
    {{if .CustomerEmail}}Billed to: {{.CustomerEmail}}{{end}}
  </div>

  <table>
    <tr><th>Exam</th><th class="amount">Price ({{.Currency}})</th></tr>
    {{range .Items}}
    <tr><td>{{.Name}}</td><td class="amount">{{.Price}}</td></tr>
    {{end}}
  </table>

  <table class="totals">
    <tr><td></td><td class="amount">Subtotal: {{.Subtotal}}</td></tr>
    {{if .CouponCode}}
    <tr><td></td><td class="amount">Discount ({{.CouponCode}}): -{{.Discount}}</td></tr>
    {{end}}
    <tr><td></td><td class="amount grand">Total: {{.Total}} {{.Currency}}</td></tr>
  </table>

  <div class="footer">
    Thank you for your purchase. Access your exams any time at {{.StoreURL}}.
  </div>
</body>
</html>`
