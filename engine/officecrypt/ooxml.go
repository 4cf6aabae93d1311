package officecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"hash"
	"unicode/utf16"
)

// ECMA-376 block keys of the agile password key encryptor
var (
	blockKeyVerifierInput = []byte{0xfe, 0xa7, 0xd2, 0x76, 0x3b, 0x4b, 0x9e, 0x79}
	blockKeyVerifierValue = []byte{0xd7, 0xaa, 0x0f, 0x6d, 0x30, 0x61, 0x34, 0x4e}
)

const (
	standardSpinCount = 50000
	maxSpinCount      = 10000000
	passwordKeyURI    = "http://schemas.microsoft.com/office/2006/keyEncryptor/password"
)

var errUnsupportedEncryption = errors.New("unsupported encryption")

// verifyPassword checks password against an EncryptionInfo stream
func verifyPassword(encryptionInfo []byte, password string) (bool, error) {
	if len(encryptionInfo) < 8 {
		return false, fmt.Errorf("encryption info too short: %d bytes", len(encryptionInfo))
	}
	major := binary.LittleEndian.Uint16(encryptionInfo[0:2])
	minor := binary.LittleEndian.Uint16(encryptionInfo[2:4])
	switch {
	case major == 4 && minor == 4:
		return verifyAgile(encryptionInfo[8:], password)
	case (major == 3 || major == 4) && minor == 2:
		return verifyStandard(encryptionInfo[8:], password)
	}
	return false, fmt.Errorf("%w: version %d.%d", errUnsupportedEncryption, major, minor)
}

type agileEncryption struct {
	XMLName       xml.Name `xml:"encryption"`
	KeyEncryptors struct {
		KeyEncryptor []struct {
			URI          string        `xml:"uri,attr"`
			EncryptedKey *encryptedKey `xml:"encryptedKey"`
		} `xml:"keyEncryptor"`
	} `xml:"keyEncryptors"`
}

type encryptedKey struct {
	SpinCount                  int    `xml:"spinCount,attr"`
	SaltSize                   int    `xml:"saltSize,attr"`
	BlockSize                  int    `xml:"blockSize,attr"`
	KeyBits                    int    `xml:"keyBits,attr"`
	HashSize                   int    `xml:"hashSize,attr"`
	CipherAlgorithm            string `xml:"cipherAlgorithm,attr"`
	HashAlgorithm              string `xml:"hashAlgorithm,attr"`
	SaltValue                  string `xml:"saltValue,attr"`
	EncryptedVerifierHashInput string `xml:"encryptedVerifierHashInput,attr"`
	EncryptedVerifierHashValue string `xml:"encryptedVerifierHashValue,attr"`
}

func verifyAgile(descriptor []byte, password string) (bool, error) {
	var enc agileEncryption
	if err := xml.Unmarshal(descriptor, &enc); err != nil {
		return false, fmt.Errorf("failed to parse encryption descriptor: %w", err)
	}
	var key *encryptedKey
	for _, ke := range enc.KeyEncryptors.KeyEncryptor {
		if ke.URI == passwordKeyURI && ke.EncryptedKey != nil {
			key = ke.EncryptedKey
			break
		}
	}
	if key == nil {
		return false, fmt.Errorf("%w: no password key encryptor", errUnsupportedEncryption)
	}
	if key.CipherAlgorithm != "" && key.CipherAlgorithm != "AES" {
		return false, fmt.Errorf("%w: cipher %s", errUnsupportedEncryption, key.CipherAlgorithm)
	}
	if key.SpinCount < 0 || key.SpinCount > maxSpinCount {
		return false, fmt.Errorf("%w: spin count %d", errUnsupportedEncryption, key.SpinCount)
	}
	newHash, err := hashFunc(key.HashAlgorithm)
	if err != nil {
		return false, err
	}

	salt, err := base64.StdEncoding.DecodeString(key.SaltValue)
	if err != nil {
		return false, fmt.Errorf("invalid salt: %w", err)
	}
	input, err := base64.StdEncoding.DecodeString(key.EncryptedVerifierHashInput)
	if err != nil {
		return false, fmt.Errorf("invalid verifier input: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(key.EncryptedVerifierHashValue)
	if err != nil {
		return false, fmt.Errorf("invalid verifier hash: %w", err)
	}

	iterated := iteratedHash(newHash, salt, password, key.SpinCount)
	keyLen := key.KeyBits / 8
	inputKey := agileKey(newHash, iterated, blockKeyVerifierInput, keyLen)
	valueKey := agileKey(newHash, iterated, blockKeyVerifierValue, keyLen)
	iv := fitLength(salt, key.BlockSize, 0x36)

	verifier, err := decryptCBC(inputKey, iv, input)
	if err != nil {
		return false, err
	}
	expected, err := decryptCBC(valueKey, iv, value)
	if err != nil {
		return false, err
	}
	if key.SaltSize > len(verifier) || key.HashSize > len(expected) {
		return false, fmt.Errorf("verifier shorter than declared sizes")
	}

	h := newHash()
	h.Write(verifier[:key.SaltSize])
	return subtle.ConstantTimeCompare(h.Sum(nil), expected[:key.HashSize]) == 1, nil
}

// iteratedHash is H(salt + password) rehashed spinCount times with a little endian counter
func iteratedHash(newHash func() hash.Hash, salt []byte, password string, spinCount int) []byte {
	h := newHash()
	h.Write(salt)
	h.Write(utf16le(password))
	sum := h.Sum(nil)

	counter := make([]byte, 4)
	for i := 0; i < spinCount; i++ {
		binary.LittleEndian.PutUint32(counter, uint32(i))
		h.Reset()
		h.Write(counter)
		h.Write(sum)
		sum = h.Sum(sum[:0])
	}
	return sum
}

func agileKey(newHash func() hash.Hash, iterated, blockKey []byte, keyLen int) []byte {
	h := newHash()
	h.Write(iterated)
	h.Write(blockKey)
	return fitLength(h.Sum(nil), keyLen, 0x36)
}

func verifyStandard(body []byte, password string) (bool, error) {
	if len(body) < 4 {
		return false, errors.New("standard encryption header missing")
	}
	headerSize := int(binary.LittleEndian.Uint32(body[0:4]))
	if headerSize < 32 || 4+headerSize > len(body) {
		return false, fmt.Errorf("invalid encryption header size %d", headerSize)
	}
	header := body[4 : 4+headerSize]
	keyBits := int(binary.LittleEndian.Uint32(header[16:20]))
	if keyBits == 0 {
		keyBits = 128
	}

	verifierData := body[4+headerSize:]
	if len(verifierData) < 4+16+16+4+32 {
		return false, errors.New("encryption verifier truncated")
	}
	saltSize := int(binary.LittleEndian.Uint32(verifierData[0:4]))
	if saltSize != 16 {
		return false, fmt.Errorf("%w: salt size %d", errUnsupportedEncryption, saltSize)
	}
	salt := verifierData[4:20]
	encryptedVerifier := verifierData[20:36]
	hashSize := int(binary.LittleEndian.Uint32(verifierData[36:40]))
	encryptedHash := verifierData[40:72]
	if hashSize > sha1.Size {
		return false, fmt.Errorf("%w: verifier hash size %d", errUnsupportedEncryption, hashSize)
	}

	key := standardKey(salt, password, keyBits/8)
	verifier, err := decryptECB(key, encryptedVerifier)
	if err != nil {
		return false, err
	}
	expected, err := decryptECB(key, encryptedHash)
	if err != nil {
		return false, err
	}
	sum := sha1.Sum(verifier)
	return subtle.ConstantTimeCompare(sum[:hashSize], expected[:hashSize]) == 1, nil
}

// standardKey derives the AES key of ECMA-376 standard encryption
func standardKey(salt []byte, password string, keyLen int) []byte {
	iterated := iteratedHash(sha1.New, salt, password, standardSpinCount)
	h := sha1.New()
	h.Write(iterated)
	h.Write([]byte{0, 0, 0, 0})
	final := h.Sum(nil)

	derive := func(pad byte) []byte {
		buf := bytes.Repeat([]byte{pad}, 64)
		for i := range final {
			buf[i] ^= final[i]
		}
		sum := sha1.Sum(buf)
		return sum[:]
	}
	x := append(derive(0x36), derive(0x5c)...)
	return x[:keyLen]
}

func hashFunc(name string) (func() hash.Hash, error) {
	switch name {
	case "SHA1", "SHA-1":
		return sha1.New, nil
	case "SHA256", "SHA-256":
		return sha256.New, nil
	case "SHA384", "SHA-384":
		return sha512.New384, nil
	case "SHA512", "SHA-512", "":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("%w: hash %s", errUnsupportedEncryption, name)
}

func decryptCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 || len(iv) != block.BlockSize() {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func decryptECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	size := block.BlockSize()
	if len(data)%size != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		block.Decrypt(out[i:i+size], data[i:i+size])
	}
	return out, nil
}

// fitLength truncates b to n bytes or pads it with pad
func fitLength(b []byte, n int, pad byte) []byte {
	if len(b) >= n {
		return append([]byte(nil), b[:n]...)
	}
	out := bytes.Repeat([]byte{pad}, n)
	copy(out, b)
	return out
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}
