// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this machine.

USB ports show their vendor and product IDs and serial number, which helps
tell several connected programmers apart.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return linkUnavailable(fmt.Errorf("enumerate serial ports: %w", err))
	}

	printPorts(cmd.OutOrStdout(), ports)
	return nil
}

func printPorts(out io.Writer, ports []*enumerator.PortDetails) {
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return
	}

	for _, port := range ports {
		if !port.IsUSB {
			fmt.Fprintln(out, port.Name)
			continue
		}

		details := []string{fmt.Sprintf("USB %s:%s", strings.ToUpper(port.VID), strings.ToUpper(port.PID))}
		if port.SerialNumber != "" {
			details = append(details, "serial "+port.SerialNumber)
		}
		if port.Product != "" {
			details = append(details, port.Product)
		}
		fmt.Fprintf(out, "%s\t%s\n", port.Name, strings.Join(details, ", "))
	}
}
