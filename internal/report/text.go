package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"csvs/internal/validator"
)

// WriteText prints the verdict line followed by up to maxShown violations
// and warnings as
//
//	[row, col]: "value"
//
// with the failing rule appended when it is known.
func WriteText(w io.Writer, sum Summary, res validator.Result, maxShown int) error {
	bw := bufio.NewWriter(w)

	verdict := "VALID"
	if !sum.Valid {
		verdict = "INVALID"
	}
	fmt.Fprintf(bw, "%s %s: %s rows, %s violations, %s warnings (mode=%s)\n",
		verdict, sum.Source,
		humanize.Comma(int64(sum.Rows)),
		humanize.Comma(int64(sum.Violations)),
		humanize.Comma(int64(sum.Warnings)),
		sum.Mode,
	)
	if sum.ParseErrors > 0 {
		fmt.Fprintf(bw, "  %s lines could not be decoded\n", humanize.Comma(int64(sum.ParseErrors)))
	}

	writeList(bw, "", res.Violations, maxShown)
	writeList(bw, "warning ", res.Warnings, maxShown)

	if sum.Sunk > 0 {
		fmt.Fprintf(bw, "  %s rows written to the violations table (run %s)\n", humanize.Comma(sum.Sunk), sum.RunID)
	}
	return bw.Flush()
}

func writeList(w io.Writer, prefix string, vs []validator.Violation, max int) {
	for _, v := range shown(vs, max) {
		fmt.Fprintf(w, "%s%s", prefix, v.String())
		switch {
		case v.Expr != "" && v.ColumnName != "":
			fmt.Fprintf(w, " %s: %s", v.ColumnName, v.Expr)
		case v.Code != validator.CodePredicate:
			fmt.Fprintf(w, " %s", v.Code)
		}
		io.WriteString(w, "\n")
	}
	if rest := len(vs) - len(shown(vs, max)); rest > 0 {
		fmt.Fprintf(w, "... and %s more\n", humanize.Comma(int64(rest)))
	}
}
