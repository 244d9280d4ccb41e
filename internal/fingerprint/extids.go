package fingerprint

import utls "github.com/enetx/utls"

// extensionID maps a uTLS extension value to its IANA TLS ExtensionType,
// the inverse of the table uTLS itself uses to build ClientHelloSpecs from
// extension ids. Only the extensions relevant to fingerprint comparison are
// named; a GenericExtension reports its own Id field, and any other
// extension type maps to 0xffff.
//
// https://www.iana.org/assignments/tls-extensiontype-values/tls-extensiontype-values.xhtml
func extensionID(ext utls.TLSExtension) (id uint16, isGrease bool) {
	switch e := ext.(type) {
	case *utls.SNIExtension:
		return 0, false
	case *utls.StatusRequestExtension:
		return 5, false
	case *utls.SupportedCurvesExtension:
		return 10, false
	case *utls.SupportedPointsExtension:
		return 11, false
	case *utls.SignatureAlgorithmsExtension:
		return 13, false
	case *utls.ALPNExtension:
		return 16, false
	case *utls.SCTExtension:
		return 18, false
	case *utls.UtlsPaddingExtension:
		return 21, false
	case *utls.ExtendedMasterSecretExtension:
		return 23, false
	case *utls.UtlsCompressCertExtension:
		return 27, false
	case *utls.FakeRecordSizeLimitExtension:
		return 28, false
	case *utls.SessionTicketExtension:
		return 35, false
	case *utls.UtlsPreSharedKeyExtension:
		return 41, false
	case *utls.SupportedVersionsExtension:
		return 43, false
	case *utls.CookieExtension:
		return 44, false
	case *utls.PSKKeyExchangeModesExtension:
		return 45, false
	case *utls.SignatureAlgorithmsCertExtension:
		return 50, false
	case *utls.KeyShareExtension:
		return 51, false
	case *utls.ApplicationSettingsExtension:
		return 17513, false
	case *utls.RenegotiationInfoExtension:
		return 65281, false
	case *utls.GenericExtension:
		return e.Id, false
	case *utls.UtlsGREASEExtension:
		return 0x0a0a, true
	default:
		return 0xffff, false
	}
}

func namedGroups(spec *utls.ClientHelloSpec) []uint16 {
	for _, ext := range spec.Extensions {
		if c, ok := ext.(*utls.SupportedCurvesExtension); ok {
			out := make([]uint16, 0, len(c.Curves))
			for _, g := range c.Curves {
				out = append(out, uint16(g))
			}
			return out
		}
	}
	return nil
}

func ecPointFormats(spec *utls.ClientHelloSpec) []uint8 {
	for _, ext := range spec.Extensions {
		if p, ok := ext.(*utls.SupportedPointsExtension); ok {
			return append([]uint8(nil), p.SupportedPoints...)
		}
	}
	return nil
}

func signatureAlgorithms(spec *utls.ClientHelloSpec) []uint16 {
	for _, ext := range spec.Extensions {
		if s, ok := ext.(*utls.SignatureAlgorithmsExtension); ok {
			out := make([]uint16, 0, len(s.SupportedSignatureAlgorithms))
			for _, a := range s.SupportedSignatureAlgorithms {
				out = append(out, uint16(a))
			}
			return out
		}
	}
	return nil
}

func alpnProtocols(spec *utls.ClientHelloSpec) []string {
	for _, ext := range spec.Extensions {
		if a, ok := ext.(*utls.ALPNExtension); ok {
			return append([]string(nil), a.AlpnProtocols...)
		}
	}
	return nil
}

func orderedExtensionIDs(spec *utls.ClientHelloSpec) []uint16 {
	out := make([]uint16, 0, len(spec.Extensions))
	for _, ext := range spec.Extensions {
		id, _ := extensionID(ext)
		out = append(out, id)
	}
	return out
}
