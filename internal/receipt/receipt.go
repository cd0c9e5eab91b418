// Package receipt формирует PDF-квитанции о пожертвованиях.
package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"

	"github.com/mmeshcher/campaignfund/internal/gateway"
	"github.com/mmeshcher/campaignfund/internal/model"
)

const defaultCampaignTitle = "Donation"

// DetailsLoader загружает данные пожертвования для квитанции.
type DetailsLoader interface {
	GetDonationDetails(ctx context.Context, id string) (*model.DonationDetails, error)
}

// ArtifactWriter сохраняет готовый файл и возвращает ссылку на него.
type ArtifactWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// RenderError описывает неудачу формирования квитанции.
type RenderError struct {
	DonationID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render receipt for donation %s: %v", e.DonationID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Generator формирует и сохраняет квитанции.
type Generator struct {
	loader   DetailsLoader
	store    ArtifactWriter
	orgName  string
	logoPath string
	compress bool
}

// NewGenerator создаёт генератор квитанций. Пустой logoPath отключает логотип.
func NewGenerator(loader DetailsLoader, store ArtifactWriter, orgName, logoPath string) *Generator {
	return &Generator{
		loader:   loader,
		store:    store,
		orgName:  orgName,
		logoPath: logoPath,
		compress: true,
	}
}

// Key возвращает ключ хранилища для квитанции пожертвования.
func Key(donationID string) string {
	return "receipts/receipt_" + donationID + ".pdf"
}

// Generate формирует квитанцию для пожертвования и возвращает ссылку на сохранённый файл.
// Любая ошибка возвращается как *RenderError.
func (g *Generator) Generate(ctx context.Context, donationID string) (string, error) {
	details, err := g.loader.GetDonationDetails(ctx, donationID)
	if err != nil {
		return "", &RenderError{DonationID: donationID, Err: fmt.Errorf("load details: %w", err)}
	}

	data, err := g.Render(*details)
	if err != nil {
		return "", err
	}

	ref, err := g.store.Write(ctx, Key(donationID), data)
	if err != nil {
		return "", &RenderError{DonationID: donationID, Err: fmt.Errorf("write artifact: %w", err)}
	}

	return ref, nil
}

// ReceiptNumber возвращает номер квитанции: последние 8 букв и цифр идентификатора в верхнем регистре.
func ReceiptNumber(donationID string) string {
	var b strings.Builder
	for _, r := range donationID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	s := b.String()
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	return s
}

// Render формирует PDF-документ квитанции формата A4.
func (g *Generator) Render(d model.DonationDetails) ([]byte, error) {
	if g.logoPath != "" {
		if _, err := os.Stat(g.logoPath); err != nil {
			return nil, &RenderError{DonationID: d.ID, Err: fmt.Errorf("logo: %w", err)}
		}
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(50, 50, 50)
	pdf.SetAutoPageBreak(false, 50)
	pdf.SetCompression(g.compress)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 100

	// Шапка.
	pdf.SetFillColor(30, 64, 175)
	pdf.Rect(0, 0, pageW, 110, "F")
	textX := 50.0
	if g.logoPath != "" {
		pdf.ImageOptions(g.logoPath, 50, 25, 60, 60, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		textX = 125
	}
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(textX, 35)
	pdf.CellFormat(pageW-textX-50, 24, tr(g.orgName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetX(textX)
	pdf.CellFormat(pageW-textX-50, 18, "DONATION RECEIPT", "", 1, "L", false, 0, "")

	pdf.SetTextColor(31, 41, 55)
	pdf.SetXY(50, 135)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW/2, 16, "Receipt #"+ReceiptNumber(d.ID), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(contentW/2, 16, "Issued: "+formatDate(d.CreatedAt), "", 1, "R", false, 0, "")

	// Жертвователь.
	pdf.Ln(20)
	sectionTitle(pdf, "Donor")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(contentW, 16, tr(d.Donor.DisplayName()), "", 1, "L", false, 0, "")
	if d.Donor.Email != "" {
		pdf.CellFormat(contentW, 16, tr(d.Donor.Email), "", 1, "L", false, 0, "")
	}

	// Кампания.
	pdf.Ln(14)
	sectionTitle(pdf, "Campaign")
	title := d.CampaignTitle
	if title == "" {
		title = defaultCampaignTitle
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(contentW, 16, tr(title), "", "L", false)

	// Платёж.
	pdf.Ln(14)
	sectionTitle(pdf, "Payment details")
	boxY := pdf.GetY()
	pdf.SetFillColor(243, 244, 246)
	pdf.SetDrawColor(209, 213, 219)
	pdf.Rect(50, boxY, contentW, 96, "FD")
	pdf.SetXY(62, boxY+10)
	paymentRow(pdf, contentW-24, "Amount", d.Amount.StringFixed(2)+" "+gateway.Currency)
	paymentRow(pdf, contentW-24, "Payment ID", gateway.DisplayReference(d.PaymentID))
	paymentRow(pdf, contentW-24, "Order ID", gateway.DisplayReference(d.OrderID))
	paymentRow(pdf, contentW-24, "Date", formatDate(d.CreatedAt))

	pdf.SetXY(50, boxY+120)
	pdf.SetFont("Helvetica", "I", 11)
	pdf.MultiCell(contentW, 16, tr("Thank you for your generous contribution. Your support makes a real difference to "+g.orgName+"."), "", "L", false)

	// Подвал.
	pdf.SetDrawColor(209, 213, 219)
	pdf.Line(50, pageH-80, pageW-50, pageH-80)
	pdf.SetXY(50, pageH-70)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(contentW, 12, "This is a computer-generated receipt and does not require a signature.", "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 12, tr(g.orgName), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{DonationID: d.ID, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &RenderError{DonationID: d.ID, Err: errors.New("empty document")}
	}

	return buf.Bytes(), nil
}

func sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(30, 64, 175)
	pdf.CellFormat(0, 18, title, "", 1, "L", false, 0, "")
	pdf.SetTextColor(31, 41, 55)
}

func paymentRow(pdf *fpdf.Fpdf, w float64, label, value string) {
	pdf.SetX(62)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 19, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(w-100, 19, value, "", 1, "L", false, 0, "")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("02 Jan 2006")
}
