// Package pairing builds the URL a display client opens to connect, and
// renders it as a terminal QR code.
package pairing

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"rsc.io/qr"
)

// URL returns the address handed to a display app, with the shared token in
// the query string. The relay itself serves nothing at "/"; the display app
// takes the host, port and token from this URL and dials /ws.
func URL(secure bool, host string, port int, token string) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	return u.String()
}

// AdvertiseHost picks the host to put in a pairing URL. A wildcard bind
// address is replaced by the LAN address so phones on the same network can
// reach it.
func AdvertiseHost(bind string) string {
	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return bind
	}
	if ip := LANIP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

// LANIP returns the first non-loopback, non-Tailscale IPv4 address.
func LANIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			ip = ip.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			// 100.64.0.0/10 is Tailscale's CGNAT range.
			if ip[0] == 100 && ip[1] >= 64 && ip[1] <= 127 {
				continue
			}
			return ip.String()
		}
	}
	return ""
}

// WriteQR renders text as a QR code using half-block characters, two module
// rows per line, with a one-module quiet zone.
func WriteQR(w io.Writer, text string) error {
	code, err := qr.Encode(text, qr.L)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}

	const quiet = 1
	size := code.Size
	full := size + quiet*2

	black := func(x, y int) bool {
		qx, qy := x-quiet, y-quiet
		if qx < 0 || qy < 0 || qx >= size || qy >= size {
			return false
		}
		return code.Black(qx, qy)
	}

	var line strings.Builder
	for y := 0; y < full; y += 2 {
		line.Reset()
		for x := 0; x < full; x++ {
			top := black(x, y)
			bot := y+1 < full && black(x, y+1)
			switch {
			case top && bot:
				line.WriteString("█")
			case top:
				line.WriteString("▀")
			case bot:
				line.WriteString("▄")
			default:
				line.WriteString(" ")
			}
		}
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}
