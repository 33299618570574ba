package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/backend/calc"
	"github.com/tailored-agentic-units/nbkernel/kernel"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nbkernel",
		Short: "Notebook kernel speaking the Jupyter messaging protocol",
		Long: `nbkernel runs code for a notebook front-end. It binds the five
channels named in a connection file, executes requests through an
interpreter backend and broadcasts results on iopub.`,
		Version:       kernel.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newBackendsCmd())
	root.AddCommand(newKernelSpecCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kernel and protocol versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (protocol %s)\n", kernel.Implementation, kernel.Version, protocol.ProtocolVersion)
		},
	}
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the available interpreter backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry()
			if err != nil {
				return err
			}
			for _, name := range r.List() {
				b, err := r.Get(name)
				if err != nil {
					return err
				}
				info := b.LanguageInfo()
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s %s\n", name, info.Version, info.MIMEType)
			}
			return nil
		},
	}
}

// kernelSpec is the kernel.json a front-end uses to launch the kernel.
type kernelSpec struct {
	Argv        []string       `json:"argv"`
	DisplayName string         `json:"display_name"`
	Language    string         `json:"language"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func newKernelSpecCmd() *cobra.Command {
	var (
		dir         string
		backendName string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "kernelspec",
		Short: "Write the kernel.json that registers nbkernel with a front-end",
		Long: `Print kernel.json to stdout, or write it under --dir so a
front-end can discover the kernel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := registry()
			if err != nil {
				return err
			}
			b, err := r.Get(backendName)
			if err != nil {
				return err
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}
			if displayName == "" {
				displayName = fmt.Sprintf("%s (nbkernel)", backendName)
			}

			spec := kernelSpec{
				Argv:        []string{exe, "run", "--backend", backendName, "--connection-file", "{connection_file}"},
				DisplayName: displayName,
				Language:    b.LanguageInfo().Name,
				Metadata:    map[string]any{"interrupt_mode": "signal"},
			}
			data, err := json.MarshalIndent(spec, "", "  ")
			if err != nil {
				return err
			}

			if dir == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			target := filepath.Join(dir, backendName)
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create kernelspec directory: %w", err)
			}
			path := filepath.Join(target, "kernel.json")
			if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("failed to write kernelspec: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Kernels directory to install into (prints to stdout when empty)")
	cmd.Flags().StringVar(&backendName, "backend", calc.Name, "Backend the kernelspec launches")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Name shown by the front-end")
	return cmd
}

func registry() (*backend.Registry, error) {
	r := backend.NewRegistry()
	if err := calc.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
