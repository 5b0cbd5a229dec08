package templ

import (
	"text/template"

	"github.com/Nanite-Factory-Games/minit/lib"
)

var openrcScript = template.Must(template.New("openrc").Funcs(funcs).Parse(`#!/sbin/openrc-run

description="Run main command on startup"

command="{{dq (index .Argv 0)}}"
command_args="{{dq (sh (slice .Argv 1))}}"
command_background=false
{{- range .Env}}
export {{index . 0}}={{shq (index . 1)}}
{{- end}}

depend() {
    after *
}
`))

// OpenRCService renders an openrc-run script for the configured command.
func OpenRCService(cfg *lib.SystemConfig) (string, error) {
	return render(openrcScript, cfg)
}
