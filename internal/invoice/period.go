package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/sbginvoice/internal/clock"
)

// Period is the calendar month being invoiced.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod validates year and month (1-12).
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	if year < 1 || year > 9999 {
		return Period{}, fmt.Errorf("year must be between 1 and 9999, got %d", year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// CurrentPeriod returns the month containing c.Now().
func CurrentPeriod(c clock.Clock) Period {
	now := c.Now()
	return Period{Year: now.Year(), Month: now.Month()}
}

// Label is the human readable month, e.g. "October 2024".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p Period) String() string {
	return p.Label()
}

// InvoiceDate is the first day of the month in UTC.
func (p Period) InvoiceDate() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// ISODate is the invoice date as YYYY-MM-DD, the renderer's date argument.
func (p Period) ISODate() string {
	return p.InvoiceDate().Format(time.DateOnly)
}

// FileStem is the shared base name of the CSV and PDF, e.g.
// "sbg_invoice_1_oct_2024".
func (p Period) FileStem() string {
	d := p.InvoiceDate()
	return fmt.Sprintf("sbg_invoice_%d_%s_%d", d.Day(), strings.ToLower(d.Format("Jan")), d.Year())
}

func (p Period) CSVName() string {
	return p.FileStem() + ".csv"
}

func (p Period) PDFName() string {
	return p.FileStem() + ".pdf"
}

// EmailSubject is the subject line of the invoice email.
func (p Period) EmailSubject() string {
	return "SBG Invoice for " + p.Label()
}

// EmailBody is the plain-text body of the invoice email.
func (p Period) EmailBody() string {
	return fmt.Sprintf("Attached is your SBG invoice for %s.", p.Label())
}
