// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

// Polynomial is an integer sequence model in Newton form:
//
//	f(k) = sum over i of Coefficients[i] * C(k, i)
//
// where C is the binomial coefficient. Coefficients[i] is the i-th forward
// difference of the sequence at k = 0, so integer sequences have integer
// coefficients.
type Polynomial struct {
	Order        int     `json:"order"`
	Coefficients []int64 `json:"coefficients"`
}

// Interpolate returns the lowest order polynomial through values at
// k = 0, 1, ..., len(values)-1.
//
// The result is only a model of the sequence when Order < len(values)-1:
// then at least one point was predicted rather than fitted.
func Interpolate(values []int64) Polynomial {
	diff := append([]int64(nil), values...)
	coeffs := make([]int64, 0, len(values))
	for len(diff) > 0 {
		coeffs = append(coeffs, diff[0])
		for i := 0; i+1 < len(diff); i++ {
			diff[i] = diff[i+1] - diff[i]
		}
		diff = diff[:len(diff)-1]
	}
	order := 0
	for i := len(coeffs) - 1; i > 0; i-- {
		if coeffs[i] != 0 {
			order = i
			break
		}
	}
	if len(coeffs) == 0 {
		return Polynomial{}
	}
	return Polynomial{Order: order, Coefficients: coeffs[:order+1]}
}

// Eval returns f(k).
func (p Polynomial) Eval(k int64) int64 {
	var sum int64
	binom := int64(1)
	for i, c := range p.Coefficients {
		if i > 0 {
			binom = binom * (k - int64(i) + 1) / int64(i)
		}
		sum += c * binom
	}
	return sum
}
