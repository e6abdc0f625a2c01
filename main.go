// =============================================================================
// ERP to CoreTax Converter - Main Entry Point
// =============================================================================
//
// USAGE:
//   converter convert [files...]  - Convert ERP exports to CoreTax workbooks
//   converter verify <file.xlsx>  - Check a workbook's CoreTax layout
//   converter serve               - Start the HTTP upload endpoint
//   converter version             - Display the application version
//
// ARCHITECTURE:
//   - cmd/                 : CLI command definitions (Cobra)
//   - internal/tabular     : .xlsx / .csv loading
//   - internal/converter   : row transformer and conversion jobs
//   - internal/coretax     : four-sheet workbook emitter
//   - internal/validation  : record and layout checks
//   - internal/server      : HTTP boundary (chi)
//   - pkg/utils            : discovery, archival, naming, summaries
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/erp-coretax-converter/cmd"
)

func main() {
	cmd.Execute()
}
