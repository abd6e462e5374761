// Package oracletest builds raw oracle accounts for tests.
package oracletest

import (
	"encoding/binary"
	"math/big"
)

type PythPush struct {
	FeedId      [32]byte
	Price       int64
	Conf        uint64
	Exponent    int32
	PublishTime int64
	EmaPrice    int64
	EmaConf     uint64
	// partial verification carries a signature count
	Partial bool
}

// PythPushAccount encodes a PriceUpdateV2 account with its discriminator.
func PythPushAccount(p PythPush) []byte {
	b := make([]byte, 0, 134)
	b = append(b, 34, 241, 35, 99, 157, 126, 244, 205)
	b = append(b, make([]byte, 32)...)
	if p.Partial {
		b = append(b, 0, 5)
	} else {
		b = append(b, 1)
	}
	b = append(b, p.FeedId[:]...)
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Price))
	b = binary.LittleEndian.AppendUint64(b, p.Conf)
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Exponent))
	b = binary.LittleEndian.AppendUint64(b, uint64(p.PublishTime))
	b = binary.LittleEndian.AppendUint64(b, uint64(p.PublishTime-1))
	b = binary.LittleEndian.AppendUint64(b, uint64(p.EmaPrice))
	b = binary.LittleEndian.AppendUint64(b, p.EmaConf)
	b = binary.LittleEndian.AppendUint64(b, 1)
	return b
}

type PythLegacy struct {
	Exponent  int32
	EmaPrice  int64
	EmaConf   uint64
	Timestamp int64
	PrevPrice int64
	PrevConf  uint64
	AggPrice  int64
	AggConf   uint64
	AggStatus uint32
}

func PythLegacyAccount(p PythLegacy) []byte {
	b := make([]byte, 240)
	le := binary.LittleEndian
	le.PutUint32(b[0:], 0xa1b2c3d4)
	le.PutUint32(b[20:], uint32(p.Exponent))
	le.PutUint64(b[48:], uint64(p.EmaPrice))
	le.PutUint64(b[72:], p.EmaConf)
	le.PutUint64(b[96:], uint64(p.Timestamp))
	le.PutUint64(b[184:], uint64(p.PrevPrice))
	le.PutUint64(b[192:], p.PrevConf)
	le.PutUint64(b[208:], uint64(p.AggPrice))
	le.PutUint64(b[216:], p.AggConf)
	le.PutUint32(b[224:], p.AggStatus)
	return b
}

type SwitchboardV2 struct {
	NumSuccess         uint32
	RoundOpenTimestamp int64
	Result             int64
	ResultScale        uint32
	StdDev             int64
	StdDevScale        uint32
}

func SwitchboardV2Account(s SwitchboardV2) []byte {
	b := make([]byte, 420)
	copy(b, []byte{217, 230, 65, 101, 201, 162, 27, 125})
	le := binary.LittleEndian
	le.PutUint32(b[341:], s.NumSuccess)
	le.PutUint64(b[358:], uint64(s.RoundOpenTimestamp))
	PutInt128(b[366:], big.NewInt(s.Result))
	le.PutUint32(b[382:], s.ResultScale)
	PutInt128(b[386:], big.NewInt(s.StdDev))
	le.PutUint32(b[402:], s.StdDevScale)
	return b
}

type SwitchboardPull struct {
	FeedHash            [32]byte
	LastUpdateTimestamp int64
	// 18 decimal fixed point
	Value  *big.Int
	StdDev *big.Int
}

func SwitchboardPullAccount(s SwitchboardPull) []byte {
	b := make([]byte, 2304)
	copy(b[2120:], s.FeedHash[:])
	binary.LittleEndian.PutUint64(b[2216:], uint64(s.LastUpdateTimestamp))
	if s.Value != nil {
		PutInt128(b[2264:], s.Value)
	}
	if s.StdDev != nil {
		PutInt128(b[2280:], s.StdDev)
	}
	return b
}

// E18 returns whole * 10^18 + frac, the pull feed encoding of whole.frac.
func E18(whole int64, frac int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return v.Add(v, big.NewInt(frac))
}

// PutInt128 writes v as a little-endian two's complement i128.
func PutInt128(b []byte, v *big.Int) {
	x := new(big.Int).Set(v)
	if x.Sign() < 0 {
		x.Add(x, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	be := x.FillBytes(make([]byte, 16))
	for i := 0; i < 16; i++ {
		b[i] = be[15-i]
	}
}
