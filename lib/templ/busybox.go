package templ

import (
	"text/template"

	"github.com/Nanite-Factory-Games/minit/lib"
)

// BusyboxInittab runs the minit run-script once and keeps a shell on the
// console.
const BusyboxInittab = `::respawn:/bin/sh
::wait:/etc/init.d/minit.sh
`

// BusyboxOpenRCInittab hands boot over to OpenRC, which then starts the
// minit service from the default runlevel.
const BusyboxOpenRCInittab = `# /etc/inittab
::sysinit:/sbin/openrc sysinit
::sysinit:/sbin/openrc boot
::wait:/sbin/openrc default

::shutdown:/sbin/openrc shutdown
`

var busyboxRunfile = template.Must(template.New("runfile").Funcs(funcs).Parse(`#!/bin/sh
{{range .Env}}
export {{index . 0}}={{shq (index . 1)}}
{{- end}}
exec {{sh .Argv}}
`))

func BusyboxRunfile(cfg *lib.SystemConfig) (string, error) {
	return render(busyboxRunfile, cfg)
}
