package badgerstore

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
)

// imageEnvelope is the stored form of an image: its declared media type
// followed by the raw bytes.
type imageEnvelope struct {
	MediaType string
	Data      []byte
}

func marshalEnvelope(env imageEnvelope) []byte {
	buf := make([]byte, ord.String.Size(env.MediaType)+len(env.Data))
	n := ord.String.Marshal(env.MediaType, buf)
	copy(buf[n:], env.Data)
	return buf
}

func unmarshalEnvelope(data []byte) (imageEnvelope, error) {
	mediaType, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return imageEnvelope{}, fmt.Errorf("image envelope: %w", err)
	}
	return imageEnvelope{MediaType: mediaType, Data: data[n:]}, nil
}
