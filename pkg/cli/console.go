// dlgclock
// Copyright (c) 2026 The dlgclock Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of dlgclock.
//
// dlgclock is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// dlgclock is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with dlgclock.  If not, see <http://www.gnu.org/licenses/>.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dlgclock/dlgclock/pkg/controller"
	"github.com/dlgclock/dlgclock/pkg/devices"
	"github.com/dlgclock/dlgclock/pkg/helpers/syncutil"
	"github.com/dlgclock/dlgclock/pkg/protocol"
	"github.com/dlgclock/dlgclock/pkg/scanner"
	"github.com/dlgclock/dlgclock/pkg/service"
	"github.com/rs/zerolog/log"
)

const helpText = `commands:
  scan, rescan         clear the device list and scan again
  stop                 stop scanning
  list                 show scanned clocks
  history              show previously connected clocks
  clear-history        forget previously connected clocks
  connect <mac|#n|hn>  connect, or disconnect when already connected
  disconnect           drop the current connection
  sync                 send the current time
  refresh              redraw the display
  invert               invert the display colours
  send <hex>           send a raw command frame
  status               show the connection state
  help                 show this text
  quit                 exit`

// syncWriter lets the status printer and the command loop share one
// output.
type syncWriter struct {
	w  io.Writer
	mu syncutil.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("console write: %w", err)
	}
	return n, nil
}

// Console is a line based command interface to a running service.
type Console struct {
	svc *service.Service
	out io.Writer
}

func NewConsole(svc *service.Service, out io.Writer) *Console {
	return &Console{svc: svc, out: &syncWriter{w: out}}
}

func (c *Console) println(a ...any) {
	_, _ = fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format, a...)
}

// Run prints status updates and executes commands read from in until quit,
// end of input or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, id := c.svc.Subscribe(32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range updates {
			c.println(u.Line())
		}
	}()
	defer func() {
		c.svc.Unsubscribe(id)
		<-printed
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.println(`type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading console input: %w", err)
			}
			return nil
		case line := <-lines:
			if c.Exec(line) {
				return nil
			}
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	log.Debug().Str("command", cmd).Strs("args", args).Msg("console command")

	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		c.println(helpText)
	case "scan", "rescan":
		c.rescan()
	case "stop":
		if err := c.svc.Scanner().Stop(); err != nil {
			c.printf("error: %v\n", err)
		}
	case "list":
		c.list()
	case "history":
		c.history()
	case "clear-history":
		if err := c.svc.Directory().ClearHistory(); err != nil {
			c.printf("error: %v\n", err)
			return false
		}
		c.println("history cleared")
	case "connect":
		c.connect(strings.Join(args, " "))
	case "disconnect":
		c.run(c.svc.Controller().Disconnect())
	case "sync":
		c.svc.Controller().SyncTime()
	case "refresh":
		c.svc.Controller().Refresh()
	case "invert":
		c.svc.Controller().Invert()
	case "send":
		c.send(strings.Join(args, ""))
	case "status":
		c.status()
	default:
		c.printf("unknown command %q, type \"help\"\n", cmd)
	}
	return false
}

func (c *Console) run(err error) {
	if err != nil {
		c.printf("error: %v\n", err)
	}
}

func (c *Console) rescan() {
	err := c.svc.Scanner().Restart()
	switch {
	case errors.Is(err, scanner.ErrRadioDisabled):
		c.println(err.Error())
	case err != nil:
		c.printf("error: %v\n", err)
	default:
		c.println("scanning")
	}
}

func (c *Console) list() {
	results := c.svc.Directory().ScanResults()
	if len(results) == 0 {
		c.println("no clocks found")
		return
	}
	for i, p := range results {
		c.printf("#%d %s\n", i+1, p)
	}
}

func (c *Console) history() {
	entries := c.svc.Directory().History()
	if len(entries) == 0 {
		c.println("no history")
		return
	}
	for i, p := range entries {
		c.printf("h%d %s\n", i+1, p)
	}
}

// resolve turns "#n" and "hn" into an address. Anything else is passed
// through for the controller to validate.
func (c *Console) resolve(arg string) (string, error) {
	var (
		list []devices.Peripheral
		num  string
	)
	switch {
	case strings.HasPrefix(arg, "#"):
		list, num = c.svc.Directory().ScanResults(), arg[1:]
	case len(arg) > 1 && (arg[0] == 'h' || arg[0] == 'H') && isDigits(arg[1:]):
		list, num = c.svc.Directory().History(), arg[1:]
	default:
		return arg, nil
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > len(list) {
		return "", fmt.Errorf("no entry %s", arg)
	}
	return list[n-1].Address, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (c *Console) connect(arg string) {
	ctrl := c.svc.Controller()
	if ctrl.Phase() != controller.PhaseIdle {
		c.run(ctrl.Disconnect())
		return
	}
	addr, err := c.resolve(strings.TrimSpace(arg))
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	// invalid addresses are reported through the status feed
	if err := ctrl.Connect(addr); errors.Is(err, controller.ErrStopped) {
		c.printf("error: %v\n", err)
	}
}

func (c *Console) send(hexText string) {
	f, err := protocol.ParseFrame(hexText)
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	c.svc.Controller().SendCommand(f)
}

func (c *Console) status() {
	snap := c.svc.Controller().Snapshot()
	if snap.Target.Address == "" {
		c.printf("%s\n", snap.Phase)
	} else {
		c.printf("%s %s\n", snap.Phase, snap.Target)
	}
	if u, ok := c.svc.LastStatus(); ok {
		c.println(u.Line())
	}
}
