// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validate

// stateFIPSAbbr maps the two-digit state FIPS codes used by the sample
// registry sources to their postal abbreviations, so overlap checks can
// consult dualSystemStates/unifiedOverlapExceptionStates, which are keyed
// by abbreviation per Census convention.
var stateFIPSAbbr = map[string]string{
	"09": "CT",
	"15": "HI",
	"33": "NH",
	"36": "NY",
	"55": "WI",
	"56": "WY",
	"72": "PR",
}

// StateAbbr returns the postal abbreviation for a state FIPS code, or the
// code itself if it isn't in the known set (the overlap-exception lookups
// then simply miss, which is the conservative — more-forbidding — choice).
func StateAbbr(fips string) string {
	if abbr, ok := stateFIPSAbbr[fips]; ok {
		return abbr
	}
	return fips
}
