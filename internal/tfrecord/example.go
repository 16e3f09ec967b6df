package tfrecord

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the tf.train.Example family of messages.
const (
	exampleFeatures  protowire.Number = 1 // Example.features
	featuresFeature  protowire.Number = 1 // Features.feature (map entry)
	mapEntryKey      protowire.Number = 1
	mapEntryValue    protowire.Number = 2
	featureBytesList protowire.Number = 1 // Feature.bytes_list
	bytesListValue   protowire.Number = 1 // BytesList.value
)

// EncodeExample serialises a tf.train.Example whose features are all
// single-valued bytes lists. Keys are written in sorted order so the output
// is deterministic.
func EncodeExample(features map[string][]byte) []byte {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var feats []byte
	for _, k := range keys {
		var list []byte
		list = protowire.AppendTag(list, bytesListValue, protowire.BytesType)
		list = protowire.AppendBytes(list, features[k])

		var feat []byte
		feat = protowire.AppendTag(feat, featureBytesList, protowire.BytesType)
		feat = protowire.AppendBytes(feat, list)

		var entry []byte
		entry = protowire.AppendTag(entry, mapEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapEntryValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, feat)

		feats = protowire.AppendTag(feats, featuresFeature, protowire.BytesType)
		feats = protowire.AppendBytes(feats, entry)
	}

	var ex []byte
	ex = protowire.AppendTag(ex, exampleFeatures, protowire.BytesType)
	ex = protowire.AppendBytes(ex, feats)
	return ex
}

// DecodeExample parses a tf.train.Example and returns its bytes-list
// features. Features of other kinds are skipped; a bytes list with several
// values keeps the last one.
func DecodeExample(b []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := eachField(b, func(num protowire.Number, v []byte) error {
		if num != exampleFeatures {
			return nil
		}
		return eachField(v, func(num protowire.Number, entry []byte) error {
			if num != featuresFeature {
				return nil
			}
			return decodeEntry(entry, out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("decoding example: %w", err)
	}
	return out, nil
}

func decodeEntry(entry []byte, out map[string][]byte) error {
	var key string
	var value []byte
	var hasValue bool
	err := eachField(entry, func(num protowire.Number, v []byte) error {
		switch num {
		case mapEntryKey:
			key = string(v)
		case mapEntryValue:
			return eachField(v, func(num protowire.Number, list []byte) error {
				if num != featureBytesList {
					return nil
				}
				return eachField(list, func(num protowire.Number, item []byte) error {
					if num == bytesListValue {
						value = append([]byte{}, item...)
						hasValue = true
					}
					return nil
				})
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if hasValue {
		out[key] = value
	}
	return nil
}

// eachField walks the length-delimited fields of a message, skipping every
// other wire type.
func eachField(b []byte, fn func(num protowire.Number, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}
