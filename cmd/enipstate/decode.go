package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/cip/wire"
	"github.com/tturner/enipstate/internal/enip"
	uferrors "github.com/tturner/enipstate/internal/errors"
)

type decodeFlags struct {
	inputFile string
	copyOut   bool
	plain     bool
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decode EtherNet/IP bytes",
		Long: `Decode one or more encapsulated EtherNet/IP messages from hex or a file.

The bytes are run through the same incremental parser the server uses, so a
stream containing several back-to-back messages decodes message by message,
and a truncated final message is reported as incomplete rather than an
error.

Input is either a hex string argument (spaces and 0x prefixes are ignored)
or a file given with --input. Files ending in .hex or .txt are read as hex
text; anything else is read as raw binary.`,
		Example: `  # Decode a RegisterSession request
  enipstate decode 6500040000000000000000000000000000000000000000000100 0000

  # Decode a binary packet export
  enipstate decode --input packet.bin

  # Copy the decoded report to the clipboard
  enipstate decode --input packet.bin --copy`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.inputFile, "input", "", "Input file (raw binary, or hex text for .hex/.txt)")
	cmd.Flags().BoolVar(&flags.copyOut, "copy", false, "Copy the decoded report to the clipboard")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Plain output without styling")

	return cmd
}

func runDecode(flags *decodeFlags, args []string) error {
	raw, err := decodeInput(flags, args)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("no input bytes")
	}

	report, err := decodeReport(raw, flags.plain)
	fmt.Fprintln(os.Stdout, report)
	if flags.copyOut {
		if cerr := clipboard.WriteAll(stripANSI(report)); cerr != nil {
			fmt.Fprintf(os.Stderr, "clipboard: %v\n", cerr)
		} else {
			fmt.Fprintln(os.Stdout, "Report copied to clipboard")
		}
	}
	return err
}

// decodeInput resolves the message bytes from the argument, the input file,
// or an interactive prompt when neither is given.
func decodeInput(flags *decodeFlags, args []string) ([]byte, error) {
	if flags.inputFile != "" {
		data, err := os.ReadFile(flags.inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		lower := strings.ToLower(flags.inputFile)
		if strings.HasSuffix(lower, ".hex") || strings.HasSuffix(lower, ".txt") {
			return parseHex(string(data))
		}
		return data, nil
	}
	if len(args) > 0 {
		return parseHex(strings.Join(args, ""))
	}

	var hexInput string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Packet bytes").
				Description("Hex-encoded EtherNet/IP message (24-byte header + payload).").
				Value(&hexInput),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}
	return parseHex(hexInput)
}

func parseHex(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", "\t", "", "\n", "", "\r", "", ",", "", "0x", "", "0X", "").Replace(s)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("parse hex input: %w", err)
	}
	return raw, nil
}

// decodeReport runs the bytes through the stream decoder and renders every
// complete message. It returns a report even on error so partial decodes
// stay visible.
func decodeReport(raw []byte, plain bool) (string, error) {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	frameStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("12")).
		Padding(0, 1)
	if plain {
		plainStyle := lipgloss.NewStyle()
		titleStyle, sectionStyle, metaStyle, frameStyle = plainStyle, plainStyle, plainStyle, plainStyle
	}

	dec := enip.NewDecoder(enip.MessageMachine(enip.DefaultRegistry(wire.DefaultRegistry())))
	dec.Feed(raw)

	var frames []string
	msgNum := 0
	for {
		res, err := dec.Step()
		if err != nil {
			frames = append(frames, metaStyle.Render(
				fmt.Sprintf("message %d: failed after %d bytes", msgNum+1, dec.Consumed())))
			return strings.Join(frames, "\n"), uferrors.WrapDecodeError(err, fmt.Sprintf("message %d", msgNum+1))
		}
		if res == enip.NeedInput {
			if dec.Consumed() > 0 {
				frames = append(frames, metaStyle.Render(
					fmt.Sprintf("message %d: incomplete after %d bytes", msgNum+1, dec.Consumed())))
			}
			break
		}
		msgNum++
		frames = append(frames, frameStyle.Render(
			renderMessage(msgNum, dec.Artifact(), titleStyle, sectionStyle, metaStyle)))
		dec.Reset()
	}
	if msgNum == 0 && len(frames) == 0 {
		return metaStyle.Render("no complete message in input"), nil
	}
	return strings.Join(frames, "\n"), nil
}

func renderMessage(n int, art *artifact.Artifact, title, section, meta lipgloss.Style) string {
	cmd, _ := art.Int(artifact.ParsePath("command"))
	session, _ := art.Int(artifact.ParsePath("session_handle"))
	status, _ := art.Int(artifact.ParsePath("status"))

	lines := []string{
		title.Render(fmt.Sprintf("Message %d: %s", n, enip.CommandName(uint16(cmd)))),
		meta.Render(fmt.Sprintf("session 0x%08X  status 0x%08X", session, status)),
		"",
		section.Render("Fields:"),
	}
	for _, entry := range art.Flatten() {
		lines = append(lines, fmt.Sprintf("  %-40s %s", entry.Path, formatValue(entry.Value)))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []byte:
		if len(val) == 0 {
			return "(empty)"
		}
		return fmt.Sprintf("% X", val)
	case string:
		return fmt.Sprintf("%q", val)
	case uint64:
		if val > 9 {
			return fmt.Sprintf("%d (0x%X)", val, val)
		}
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// stripANSI removes terminal styling so clipboard content stays readable.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
