package coretax

// DefaultSellerNPWP is the seller tax id written to the Faktur sheet when
// none is configured.
const DefaultSellerNPWP = "0012328415631000"

// Sheet names, in workbook order.
const (
	SheetFaktur       = "Faktur"
	SheetDetailFaktur = "DetailFaktur"
	SheetREF          = "REF"
	SheetKeterangan   = "Keterangan"
)

// SheetOrder is the fixed order of the four sheets.
var SheetOrder = []string{SheetFaktur, SheetDetailFaktur, SheetREF, SheetKeterangan}

// DetailHeaders is row 1 of the DetailFaktur sheet.
var DetailHeaders = []string{
	"Baris",
	"Barang.Jasa",
	"Kode Barang Jasa",
	"Nama Barang.Jasa",
	"Nama Satuan Ukur",
	"Harga Satuan",
	"Jumlah Barang Jasa",
	"Total Diskon",
	"DPP",
	"DPP Nilai Lain",
	"Tarif PPN",
	"PPN",
	"Tarif PPnBM",
	"PPnBM",
}

// numericDetailColumns marks the 1-based DetailFaktur columns that hold numbers.
var numericDetailColumns = map[int]bool{
	1: true, 6: true, 7: true, 8: true, 9: true,
	10: true, 11: true, 12: true, 13: true, 14: true,
}

// IsNumericDetailColumn reports whether the 1-based DetailFaktur column holds
// numbers.
func IsNumericDetailColumn(col int) bool {
	return numericDetailColumns[col]
}

// Faktur sheet layout.
const (
	FakturNPWPLabel      = "NPWP Penjual"
	FakturHeaderRow      = 3
	FakturFirstEntryRow  = 4
	FakturEntryCount     = 5
	FakturInvoiceType    = "Normal"
	fakturRowLabel       = "Baris"
	fakturTypeLabel      = "Jenis Faktur"
	fakturRemarksLabel   = "Keterangan Tambahan"
	refCodeLabel         = "Kode"
	refDescriptionLabel  = "Keterangan"
	refGoodsAndServices  = "Barang/Jasa"
	keteranganSheetLabel = "Faktur"
)

// KeteranganHeaders is row 1 of the Keterangan sheet.
var KeteranganHeaders = []string{"Kolom", "Mandatory", "Validasi DJP", "Keterangan"}

// neutralDetailValue is written when a DetailFaktur cell cannot be written.
func neutralDetailValue(col int) any {
	switch {
	case col == 2:
		return "A"
	case IsNumericDetailColumn(col):
		return 0
	default:
		return ""
	}
}
