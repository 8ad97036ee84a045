package netutil

import (
	"fmt"
	"io"
	"net"

	"github.com/jackpal/gateway"
	"github.com/mdp/qrterminal/v3"
)

// LANAddr returns the local IPv4 address on the interface facing the default
// gateway. That is the address other hosts on the LAN can reach, which is
// what the startup banner should advertise when the server binds 0.0.0.0.
func LANAddr() (net.IP, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discover gateway: %w", err)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() || !ip.IsGlobalUnicast() {
				continue
			}
			if ipnet.Contains(gw) {
				return ip, nil
			}
		}
	}
	return nil, fmt.Errorf("no local IPv4 address shares a subnet with gateway %s", gw)
}

// WriteQR renders url as a scannable QR code using half-block characters.
func WriteQR(w io.Writer, url string) {
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
		Writer:         w,
		Level:          qrterminal.L,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		QuietZone:      1,
	})
}
