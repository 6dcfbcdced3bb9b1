package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// zeroconfResolver browses ServiceType with zeroconf and converts its
// entries to answers.
func zeroconfResolver(ctx context.Context, iface string, entries, removed chan<- answer) error {
	var opts []zeroconf.ClientOption
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", iface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*ifi}))
	}

	found := make(chan *zeroconf.ServiceEntry)
	lost := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})

	go func() {
		defer close(done)
		forward := func(dst chan<- answer, e *zeroconf.ServiceEntry) bool {
			select {
			case dst <- entryToAnswer(e):
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case e, ok := <-found:
				if !ok || !forward(entries, e) {
					return
				}
			case e, ok := <-lost:
				if !ok {
					lost = nil
					continue
				}
				if !forward(removed, e) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := zeroconf.Browse(ctx, ServiceType, Domain, found, lost, opts...); err != nil {
		return err
	}
	<-done
	return nil
}

// entryToAnswer collects the fields of a zeroconf entry.
func entryToAnswer(entry *zeroconf.ServiceEntry) answer {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return answer{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Text:     entry.Text,
		Addrs:    addrs,
	}
}
