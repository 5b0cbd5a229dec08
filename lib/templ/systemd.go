package templ

import (
	"text/template"

	"github.com/Nanite-Factory-Games/minit/lib"
)

var systemdUnit = template.Must(template.New("systemd").Funcs(funcs).Parse(`[Unit]
Description=Run main command at startup
After=default.target

[Service]
Type=simple
ExecStart={{unit .Argv}}
{{- range .Env}}
Environment={{unitenv .}}
{{- end}}
RemainAfterExit=false

[Install]
WantedBy=default.target
`))

// SystemdService renders the unit that runs the configured command once the
// default target is reached.
func SystemdService(cfg *lib.SystemConfig) (string, error) {
	return render(systemdUnit, cfg)
}
