package grid

import (
	"math"
	"strconv"
)

// tickExponent 档位价格统一保留 4 位小数；所有相等性比较都在这个精度上进行。
const tickExponent = 1e4

// Level is a price level expressed in 1e-4 ticks. Using an integer tick
// count as the canonical form makes levels safe map keys and removes the
// float-equality bugs of keying on raw prices.
type Level int64

// LevelOf rounds price to tick precision and returns the canonical level.
func LevelOf(price float64) Level {
	return Level(math.Round(price * tickExponent))
}

// Price returns the level as a float price.
func (l Level) Price() float64 {
	return float64(l) / tickExponent
}

// Shift 返回偏移 spacing（可为负）后的档位，偏移量同样按 tick 精度取整。
func (l Level) Shift(spacing float64) Level {
	return l + LevelOf(spacing)
}

func (l Level) String() string {
	return strconv.FormatFloat(l.Price(), 'f', 4, 64)
}

// Levels 是一次规划的目标档位：Buys 自高向低，Sells 自低向高。
type Levels struct {
	Buys  []Level
	Sells []Level
}

// Plan computes the target grid around ref. Buy level i sits spacing*i
// below ref, sell level i spacing*i above, i = 1..count, each rounded to
// tick precision. Non-positive buy levels are dropped (the caller logs the
// shortfall). Pure and deterministic.
func Plan(ref, spacing float64, count int) Levels {
	lv := Levels{
		Buys:  make([]Level, 0, count),
		Sells: make([]Level, 0, count),
	}
	if spacing <= 0 || count <= 0 {
		return lv
	}
	for i := 1; i <= count; i++ {
		buy := LevelOf(ref - spacing*float64(i))
		if buy > 0 {
			lv.Buys = append(lv.Buys, buy)
		}
		lv.Sells = append(lv.Sells, LevelOf(ref+spacing*float64(i)))
	}
	return lv
}

// Band is the admissible resting range: ref ± spacing*count, widened by
// tolerance on both ends.
type Band struct {
	Low  Level
	High Level
}

// BandAround 根据参考价计算允许挂单区间。
func BandAround(ref, spacing float64, count int, tolerance float64) Band {
	width := spacing*float64(count) + tolerance
	return Band{
		Low:  LevelOf(ref - width),
		High: LevelOf(ref + width),
	}
}

// Contains reports whether the level rests inside the band.
func (b Band) Contains(l Level) bool {
	return l >= b.Low && l <= b.High
}
