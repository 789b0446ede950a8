package tools

import (
	"encoding/base64"

	"github.com/masc-dev/masc/internal/cryptoutil"
	"github.com/masc-dev/masc/internal/merrors"
)

// EncryptionTools returns operations for sealing and opening a
// checkpoint's opaque state payload with the server's configured key,
// for agents that want it encrypted at rest before it's mirrored into
// an external read-model (spec.md §4.7 "data model is shaped to permit
// mirroring into an external graph store").
func EncryptionTools() []Tool {
	return []Tool{
		{
			Name:       "encrypt_payload",
			Category:   CategoryEncryption,
			Capability: CanClaim,
			Schema:     Schema{{Name: "plaintext", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				if len(cc.EncryptionKey) != cryptoutil.KeySize {
					return nil, merrors.InvalidParams("plaintext", "encryption not configured for this server")
				}
				sealed, err := cryptoutil.Seal(cc.EncryptionKey, []byte(stringArg(args, "plaintext")))
				if err != nil {
					return nil, err
				}
				return map[string]any{"sealed": base64.StdEncoding.EncodeToString(sealed)}, nil
			},
		},
		{
			Name:       "decrypt_payload",
			Category:   CategoryEncryption,
			Capability: CanClaim,
			Schema:     Schema{{Name: "sealed", Type: TypeString, Required: true}},
			Handler: func(cc CallContext, args map[string]any) (any, error) {
				if len(cc.EncryptionKey) != cryptoutil.KeySize {
					return nil, merrors.InvalidParams("sealed", "encryption not configured for this server")
				}
				raw, err := base64.StdEncoding.DecodeString(stringArg(args, "sealed"))
				if err != nil {
					return nil, merrors.InvalidParams("sealed", "not valid base64")
				}
				plaintext, err := cryptoutil.Open(cc.EncryptionKey, raw)
				if err != nil {
					return nil, err
				}
				return map[string]any{"plaintext": string(plaintext)}, nil
			},
		},
	}
}
