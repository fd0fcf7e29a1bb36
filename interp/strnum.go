// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package interp

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/qyqx/arcueid/value"
)

// string2num parses s as a number in the given base (2..36). The
// dispatch mirrors the original's sniffing order: a trailing i/j means
// complex; a '.' means flonum; an exponent marker that cannot be a
// digit in this base (e/E below base 14, p/P below base 25) or a '&'
// means flonum; a '/' means rational; anything else is an integer.
// Returns (nil-value, false) when s does not parse.
func (ic *Interp) string2num(s string, base int) (value.Value, bool) {
	if base < 2 || base > 36 {
		return value.Nil, false
	}
	if s == "" {
		return value.Nil, false
	}
	switch {
	case strings.HasSuffix(s, "i") || strings.HasSuffix(s, "j"):
		return ic.parseComplex(s)
	case strings.ContainsRune(s, '.'),
		base < 14 && strings.ContainsAny(s, "eE"),
		base < 25 && strings.ContainsAny(s, "pP"),
		strings.ContainsRune(s, '&'):
		return ic.parseFlonum(s, base)
	case strings.ContainsRune(s, '/'):
		return ic.parseRational(s, base)
	default:
		return ic.parseInteger(s, base)
	}
}

func (ic *Interp) parseInteger(s string, base int) (value.Value, bool) {
	z, ok := new(big.Int).SetString(s, base)
	if !ok {
		return value.Nil, false
	}
	return ic.mkBignum(z), true
}

func (ic *Interp) parseRational(s string, base int) (value.Value, bool) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return value.Nil, false
	}
	zn, ok1 := new(big.Int).SetString(num, base)
	zd, ok2 := new(big.Int).SetString(den, base)
	if !ok1 || !ok2 || zd.Sign() == 0 {
		return value.Nil, false
	}
	return ic.mkRational(new(big.Rat).SetFrac(zn, zd)), true
}

func (ic *Interp) parseFlonum(s string, base int) (value.Value, bool) {
	// the '&' exponent marker is the base-agnostic spelling; rewrite it
	// to e for the decimal parser
	if base == 10 {
		t := strings.ReplaceAll(s, "&", "e")
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return value.Nil, false
		}
		return ic.mkFlonum(f), true
	}
	// non-decimal flonum: mantissa [. fraction] with optional p/P or &
	// power-of-base exponent
	mant := s
	exp := 0
	if i := strings.IndexAny(s, "pP&"); i >= 0 {
		mant = s[:i]
		e, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return value.Nil, false
		}
		exp = e
	}
	ip, fp, _ := strings.Cut(mant, ".")
	neg := false
	if strings.HasPrefix(ip, "-") {
		neg = true
		ip = ip[1:]
	}
	f := 0.0
	if ip != "" {
		z, ok := new(big.Int).SetString(ip, base)
		if !ok {
			return value.Nil, false
		}
		ff, _ := new(big.Float).SetInt(z).Float64()
		f = ff
	}
	scale := 1.0
	for _, r := range fp {
		d := digitVal(r)
		if d < 0 || d >= base {
			return value.Nil, false
		}
		scale /= float64(base)
		f += float64(d) * scale
	}
	for ; exp > 0; exp-- {
		f *= float64(base)
	}
	for ; exp < 0; exp++ {
		f /= float64(base)
	}
	if neg {
		f = -f
	}
	return ic.mkFlonum(f), true
}

// parseComplex handles re+imi / re-imi forms (and bare "imi"); complex
// literals are always decimal.
func (ic *Interp) parseComplex(s string) (value.Value, bool) {
	body := s[:len(s)-1] // strip trailing i/j
	// find the sign splitting re from im: the last +/- not at the
	// start and not directly after an exponent marker
	split := -1
	for i := len(body) - 1; i > 0; i-- {
		if body[i] == '+' || body[i] == '-' {
			if body[i-1] == 'e' || body[i-1] == 'E' {
				continue
			}
			split = i
			break
		}
	}
	var reStr, imStr string
	if split < 0 {
		reStr, imStr = "0", body
	} else {
		reStr, imStr = body[:split], body[split:]
	}
	if imStr == "" || imStr == "+" {
		imStr = "1"
	} else if imStr == "-" {
		imStr = "-1"
	}
	re, err1 := strconv.ParseFloat(reStr, 64)
	im, err2 := strconv.ParseFloat(imStr, 64)
	if err1 != nil || err2 != nil {
		return value.Nil, false
	}
	return ic.mkComplex(re, im), true
}

func digitVal(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'z':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'Z':
		return int(r-'A') + 10
	}
	return -1
}

// num2string renders a number in the given base. Only exact integers
// honor a base other than 10.
func (ic *Interp) num2string(v value.Value, base int) string {
	switch ic.numRank(v) {
	case rankFixnum:
		return strconv.FormatInt(v.Int(), base)
	case rankBignum:
		return ic.bigOf(v).Text(base)
	case rankRational:
		r := ic.ratOf(v)
		return r.Num().Text(base) + "/" + r.Denom().Text(base)
	case rankFlonum:
		return strconv.FormatFloat(ic.floOf(v), 'g', -1, 64)
	case rankComplex:
		c := ic.cpxOf(v)
		im := strconv.FormatFloat(imag(c), 'g', -1, 64)
		if imag(c) >= 0 {
			im = "+" + im
		}
		return strconv.FormatFloat(real(c), 'g', -1, 64) + im + "i"
	}
	return ""
}
