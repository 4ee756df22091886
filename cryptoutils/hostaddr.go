package cryptoutils

import (
	"errors"
	"net"
)

// DefaultSubjectCN is used when no outbound address can be determined.
const DefaultSubjectCN = "Cert"

// routeProbeAddr is only used to select a route; nothing is sent to it.
var routeProbeAddr = "8.8.8.8:80"

// PrimaryOutboundIP returns the local address the system would use for
// outbound traffic. A UDP "connection" performs the route lookup without
// sending packets.
func PrimaryOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", routeProbeAddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return nil, errors.New("no outbound address")
	}
	return addr.IP, nil
}

// SubjectCommonName returns the primary outbound IP as a string, or DefaultSubjectCN.
func SubjectCommonName() string {
	ip, err := PrimaryOutboundIP()
	if err != nil {
		return DefaultSubjectCN
	}
	return ip.String()
}
