package interfaces

import (
	"github.com/inaetics/node-wiring-go/cryptoutils"
)

type TLSCSR = cryptoutils.TLSCSR
type TLSCert = cryptoutils.TLSCert
type CACert = cryptoutils.CACert
type PublicKeyPEM = cryptoutils.PublicKeyPEM
type PrivateKeyPEM = cryptoutils.PrivateKeyPEM
