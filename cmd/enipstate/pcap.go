package main

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"
	"github.com/tturner/enipstate/internal/artifact"
	"github.com/tturner/enipstate/internal/automata"
	"github.com/tturner/enipstate/internal/cip/wire"
	"github.com/tturner/enipstate/internal/enip"
)

type pcapFlags struct {
	inputFile string
	port      int
	verbose   bool
}

func newPcapCmd() *cobra.Command {
	flags := &pcapFlags{}

	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Decode EtherNet/IP traffic from a capture file",
		Long: `Read a PCAP file and decode the EtherNet/IP messages in it.

TCP payloads are reassembled per flow and fed through the incremental
parser, so messages split across segments or packed several to a segment
decode correctly. UDP datagrams on the same port are decoded standalone,
which covers ListIdentity broadcasts. Each decoded message prints one
summary line; --verbose adds the full field dump.`,
		Example: `  # Summarize ENIP traffic in a capture
  enipstate pcap --input session.pcap

  # Full field dump of every message
  enipstate pcap --input session.pcap --verbose

  # Non-standard port
  enipstate pcap --input session.pcap --port 2222`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPcapDecode(flags)
		},
	}

	cmd.Flags().StringVar(&flags.inputFile, "input", "", "Input PCAP file (required)")
	cmd.MarkFlagRequired("input")
	cmd.Flags().IntVar(&flags.port, "port", 44818, "EtherNet/IP port")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Dump every decoded field")

	return cmd
}

// flowState decodes one direction of one TCP connection.
type flowState struct {
	dec  *enip.Decoder
	dead bool
}

func runPcapDecode(flags *pcapFlags) error {
	f, err := os.Open(flags.inputFile)
	if err != nil {
		return fmt.Errorf("open pcap file: %w", err)
	}
	defer f.Close()
	handle, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("open pcap file: %w", err)
	}

	machine := enip.MessageMachine(enip.DefaultRegistry(wire.DefaultRegistry()))
	flows := make(map[string]*flowState)
	messages, failures := 0, 0

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
			udp, _ := udpLayer.(*layers.UDP)
			if int(udp.SrcPort) != flags.port && int(udp.DstPort) != flags.port {
				continue
			}
			if len(udp.Payload) == 0 {
				continue
			}
			key := datagramKey(packet.NetworkLayer(), udp)
			m, f := decodeDatagram(machine, key, udp.Payload, flags.verbose)
			messages += m
			failures += f
			continue
		}

		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, _ := tcpLayer.(*layers.TCP)
		if int(tcp.SrcPort) != flags.port && int(tcp.DstPort) != flags.port {
			continue
		}
		if len(tcp.Payload) == 0 {
			continue
		}

		key := flowKey(packet.NetworkLayer(), tcp)
		flow, ok := flows[key]
		if !ok {
			flow = &flowState{dec: enip.NewDecoder(machine)}
			flows[key] = flow
		}
		if flow.dead {
			continue
		}
		flow.dec.Feed(tcp.Payload)

		for {
			res, err := flow.dec.Step()
			if err != nil {
				fmt.Fprintf(os.Stdout, "%s  decode error after %d bytes: %v\n", key, flow.dec.Consumed(), err)
				flow.dead = true
				failures++
				break
			}
			if res == enip.NeedInput {
				break
			}
			messages++
			printPcapMessage(key, flow.dec.Artifact(), flags.verbose)
			flow.dec.Reset()
		}
	}

	fmt.Fprintf(os.Stdout, "\n%d messages decoded", messages)
	if failures > 0 {
		fmt.Fprintf(os.Stdout, ", %d flows abandoned after errors", failures)
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func printPcapMessage(key string, art *artifact.Artifact, verbose bool) {
	cmd, _ := art.Int(artifact.ParsePath("command"))
	session, _ := art.Int(artifact.ParsePath("session_handle"))
	length, _ := art.Int(artifact.ParsePath("length"))
	fmt.Fprintf(os.Stdout, "%s  %-18s session=0x%08X len=%d\n",
		key, enip.CommandName(uint16(cmd)), session, length)
	if !verbose {
		return
	}
	for _, entry := range art.Flatten() {
		fmt.Fprintf(os.Stdout, "    %-40s %s\n", entry.Path, formatValue(entry.Value))
	}
}

// decodeDatagram decodes the ENIP messages packed into one UDP datagram.
func decodeDatagram(machine *automata.Machine, key string, payload []byte, verbose bool) (messages, failures int) {
	dec := enip.NewDecoder(machine)
	dec.Feed(payload)
	for {
		res, err := dec.Step()
		if err != nil {
			fmt.Fprintf(os.Stdout, "%s  decode error after %d bytes: %v\n", key, dec.Consumed(), err)
			return messages, failures + 1
		}
		if res == enip.NeedInput {
			return messages, failures
		}
		messages++
		printPcapMessage(key, dec.Artifact(), verbose)
		dec.Reset()
	}
}

func flowKey(netLayer gopacket.NetworkLayer, tcp *layers.TCP) string {
	if netLayer != nil {
		src, dst := netLayer.NetworkFlow().Endpoints()
		return fmt.Sprintf("%s:%d->%s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
	}
	return fmt.Sprintf("unknown:%d->unknown:%d", tcp.SrcPort, tcp.DstPort)
}

func datagramKey(netLayer gopacket.NetworkLayer, udp *layers.UDP) string {
	if netLayer != nil {
		src, dst := netLayer.NetworkFlow().Endpoints()
		return fmt.Sprintf("%s:%d->%s:%d/udp", src, udp.SrcPort, dst, udp.DstPort)
	}
	return fmt.Sprintf("unknown:%d->unknown:%d/udp", udp.SrcPort, udp.DstPort)
}
