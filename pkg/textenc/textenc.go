// Package textenc decodes transcript files to UTF-8. Transcripts exported
// from older meeting tools are often Windows-1252, UTF-16 with a BOM, or one
// of the East Asian legacy encodings.
package textenc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Auto selects the encoding from the data: a byte order mark wins, valid
// UTF-8 is kept, anything else is read as Windows-1252.
const Auto = "auto"

var encodings = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"utf-16":       unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM),
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"latin2":       charmap.ISO8859_2,
	"iso-8859-15":  charmap.ISO8859_15,
	"latin9":       charmap.ISO8859_15,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"windows-1251": charmap.Windows1251,
	"cp1251":       charmap.Windows1251,
	"koi8-r":       charmap.KOI8R,
	"gbk":          simplifiedchinese.GBK,
	"gb2312":       simplifiedchinese.GBK,
	"gb18030":      simplifiedchinese.GB18030,
	"big5":         traditionalchinese.Big5,
	"euc-jp":       japanese.EUCJP,
	"iso-2022-jp":  japanese.ISO2022JP,
	"shift_jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
	"euc-kr":       korean.EUCKR,
}

// Charsets returns the accepted charset names, sorted.
func Charsets() []string {
	names := make([]string, 0, len(encodings)+1)
	names = append(names, Auto)
	for name := range encodings {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// Decode converts data in charset to a UTF-8 string. An empty charset means Auto.
func Decode(data []byte, charset string) (string, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == Auto {
		return decodeAuto(data)
	}
	enc, ok := encodings[charset]
	if !ok {
		return "", fmt.Errorf("unknown charset: %s (supported: %s)", charset, strings.Join(Charsets(), ", "))
	}
	return decodeWith(data, enc)
}

// ReadFile reads path and decodes it with Decode.
func ReadFile(path, charset string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading transcript file: %w", err)
	}
	return Decode(data, charset)
}

func decodeAuto(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))
	case utf8.Valid(data):
		return string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})), nil
	default:
		return decodeWith(data, charmap.Windows1252)
	}
}

func decodeWith(data []byte, enc encoding.Encoding) (string, error) {
	// BOMOverride strips a UTF-8 BOM as well as honouring a UTF-16 one.
	decoder := unicode.BOMOverride(enc.NewDecoder())
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return "", fmt.Errorf("charset decoding failed: %w", err)
	}
	return string(out), nil
}
