package cufe

import (
	"strings"
	"testing"

	"github.com/facturae-co/dian-gateway/app/internal/invoice"
)

func testFields() invoice.DocumentFields {
	return invoice.DocumentFields{
		Number:       "SETP1",
		IssueDate:    "2024-01-15",
		IssueTime:    "10:30:00",
		InvoiceTotal: invoice.NewAmount(100000, 0),
		TaxValue:     invoice.NewAmount(19000, 0),
		GrandTotal:   invoice.NewAmount(119000, 0),
		Supplier:     invoice.Party{ID: "900123456", Name: "Proveedor SAS"},
		Customer:     invoice.Party{ID: "1000200300", Name: "Cliente"},
	}
}

func TestGenerate_KnownVector(t *testing.T) {
	fields := testFields()

	wantCanonical := "SETP120240115103000" + "11900000" + "01" + "1900000" + "900123456" + "1000200300" + "SW001" + "1234"
	if got := CanonicalString(fields, "SW001", "1234"); got != wantCanonical {
		t.Fatalf("CanonicalString() = %q, want %q", got, wantCanonical)
	}

	// sha384 of the canonical string above
	want := "82ba54c26fddcb6293f1b22bcfc2c69493fd4bfa8f4a7722a9f91bfbc6b6e848ce0a4de9273e70b4f34db360b6706f98"
	got := Generate(fields, "SW001", "1234")
	if got != want {
		t.Errorf("Generate() = %s, want %s", got, want)
	}
	if !IsValid(got) {
		t.Errorf("Generate() returned malformed CUFE %q", got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	fields := testFields()
	first := Generate(fields, "SW001", "1234")
	for range 10 {
		if got := Generate(fields, "SW001", "1234"); got != first {
			t.Fatalf("Generate() not deterministic: %s != %s", got, first)
		}
	}
}

func TestGenerate_EveryFieldChangesOutput(t *testing.T) {
	base := Generate(testFields(), "SW001", "1234")

	tests := []struct {
		name   string
		modify func(f *invoice.DocumentFields)
		id     string
		pin    string
	}{
		{name: "number", modify: func(f *invoice.DocumentFields) { f.Number = "SETP2" }},
		{name: "date", modify: func(f *invoice.DocumentFields) { f.IssueDate = "2024-01-16" }},
		{name: "time", modify: func(f *invoice.DocumentFields) { f.IssueTime = "10:30:01" }},
		{name: "grand total", modify: func(f *invoice.DocumentFields) { f.GrandTotal = invoice.NewAmount(119000, 1) }},
		{name: "tax value", modify: func(f *invoice.DocumentFields) { f.TaxValue = invoice.NewAmount(19001, 0) }},
		{name: "supplier", modify: func(f *invoice.DocumentFields) { f.Supplier.ID = "900123457" }},
		{name: "customer", modify: func(f *invoice.DocumentFields) { f.Customer.ID = "1000200301" }},
		{name: "software id", id: "SW002"},
		{name: "software pin", pin: "4321"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := testFields()
			if tt.modify != nil {
				tt.modify(&fields)
			}
			id, pin := "SW001", "1234"
			if tt.id != "" {
				id = tt.id
			}
			if tt.pin != "" {
				pin = tt.pin
			}
			if got := Generate(fields, id, pin); got == base {
				t.Errorf("changing %s did not change the CUFE", tt.name)
			}
		})
	}
}

func TestGenerate_AdjacentFieldsDoNotCollide(t *testing.T) {
	// "1" + 2024-11-05 vs "11" + 2024-01-05 share a prefix if the date were not fixed width
	a := testFields()
	a.Number = "1"
	a.IssueDate = "2024-11-05"

	b := testFields()
	b.Number = "11"
	b.IssueDate = "2024-01-05"

	if Generate(a, "SW001", "1234") == Generate(b, "SW001", "1234") {
		t.Error("adjacent variable-length fields collided")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"150000.00", "15000000"},
		{"150000", "15000000"},
		{"119000.5", "11900050"},
		{"0.05", "005"},
		{"0", "000"},
		{"19000.99", "1900099"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			amount, err := invoice.ParseAmount(tt.in)
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tt.in, err)
			}
			if got := FormatAmount(amount); got != tt.want {
				t.Errorf("FormatAmount(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSoftwareSecurityCode(t *testing.T) {
	// sha384("SW0011234SETP1")
	want := "e5cc44822c5c15fef618ec6488445a42173567e28bd58543e90a64179c5b300c4c23508e7edcc1f87a0d58231b755d19"
	if got := SoftwareSecurityCode("SW001", "1234", "SETP1"); got != want {
		t.Errorf("SoftwareSecurityCode() = %s, want %s", got, want)
	}
}

func TestIsValid(t *testing.T) {
	valid := strings.Repeat("a1", Length/2)
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", valid, true},
		{"too short", valid[:95], false},
		{"uppercase", strings.ToUpper(valid), false},
		{"non hex", strings.Repeat("g", Length), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQRData(t *testing.T) {
	fields := testFields()
	cufe := Generate(fields, "SW001", "1234")

	got := QRData(fields, cufe, SearchURLProduction)
	lines := strings.Split(got, "\n")
	if len(lines) != 11 {
		t.Fatalf("expected 11 lines, got %d: %q", len(lines), got)
	}

	want := []string{
		"NumFac:SETP1",
		"FecFac:2024-01-15",
		"HorFac:10:30:00",
		"NitFac:900123456",
		"DocAdq:1000200300",
		"ValFac:100000.00",
		"ValIva:19000.00",
		"ValOtroIm:0.00",
		"ValTotal:119000.00",
		"CUFE:" + cufe,
		"URL:" + SearchURLProduction + cufe,
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
