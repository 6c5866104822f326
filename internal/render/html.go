package render

import (
	"html/template"
	"strings"

	"github.com/dustin/go-humanize"

	"itn-reports/internal/report"
)

// NoCollectorsHTML is served when nobody has reported.
const NoCollectorsHTML = "zero collectors online"

// CollectorRow is one line of the online collectors table.
type CollectorRow struct {
	Address   string
	Total     int64
	Last24h   int64
	PerDay    int64
	PerHour   int64
	PerMinute float64
}

var funcs = template.FuncMap{
	"comma": humanize.Comma,
	"join": func(items []string) string {
		return strings.Join(items, ", ")
	},
	"ftoa": func(v float64) string {
		return humanize.FtoaWithDigits(v, 4)
	},
}

var holdersTmpl = template.Must(template.New("holders").Funcs(funcs).Parse(`<table>
    <tr>
        <th>Stake Key</th>
        <th>Staked</th>
        <th>Licenses</th>
        <th>Alias</th>
    </tr>
{{- range .}}
<tr>
    <td>{{.Staking}}</td>
    <td nowrap>&nbsp;{{comma .Staked}}&nbsp;</td>
    <td nowrap>&nbsp;{{join .Licenses}}&nbsp;</td>
    <td>{{.Alias}}</td>
</tr>
{{- end}}
</table>
`))

var collectorsTmpl = template.Must(template.New("collectors").Funcs(funcs).Parse(`<table>
    <tr>
        <th>Stake Key</th>
        <th>Total</th>
        <th>Last 24h</th>
        <th>Per Feed (24h)</th>
        <th>Per Feed (1h)</th>
        <th>Per Feed (1m)</th>
    </tr>
{{- range .}}
<tr>
    <td>{{.Address}}</td>
    <td nowrap>&nbsp;{{comma .Total}}&nbsp;</td>
    <td nowrap>&nbsp;{{comma .Last24h}}&nbsp;</td>
    <td nowrap>&nbsp;{{comma .PerDay}}&nbsp;</td>
    <td nowrap>&nbsp;{{comma .PerHour}}&nbsp;</td>
    <td nowrap>&nbsp;{{ftoa .PerMinute}}&nbsp;</td>
</tr>
{{- end}}
</table>
`))

// HoldersHTML renders the entitlement list as an HTML table fragment.
func HoldersHTML(holders []report.LicenseHolder) (string, error) {
	var b strings.Builder
	if err := holdersTmpl.Execute(&b, holders); err != nil {
		return "", err
	}
	return b.String(), nil
}

// CollectorsHTML renders collector activity as an HTML table fragment.
func CollectorsHTML(rows []CollectorRow) (string, error) {
	if len(rows) == 0 {
		return NoCollectorsHTML, nil
	}
	var b strings.Builder
	if err := collectorsTmpl.Execute(&b, rows); err != nil {
		return "", err
	}
	return b.String(), nil
}
