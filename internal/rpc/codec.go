/*

This file contains the gRPC wire layer shared by remote oracle sources and remote venues. Messages are
plain Go structs carried with a JSON codec registered under the "json" content subtype, so no generated
protobuf code is needed on either side.

*/

package rpc

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by every call in this package.
const CodecName = "json"

// Codec marshals gRPC messages as JSON.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOptions are appended to every client call.
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

// Dial connects to endpoint. Endpoints on port 443 use TLS, everything else is plaintext.
func Dial(endpoint string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	conn, err := grpc.Dial(endpoint, append([]grpc.DialOption{creds}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gRPC connection to %s failed: %w", endpoint, err)
	}
	return conn, nil
}
