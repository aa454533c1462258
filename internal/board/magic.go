package board

// Sliding-piece attack tables for Lance, Bishop and Rook. The teacher's
// chess magic.go indexes a precomputed attack array with a found magic
// multiplier; deriving correct 81-square magic constants by hand (without
// running a search program) is not practical here, so the blocker-mask /
// indexed-array architecture is kept but the index is produced by a software
// PEXT (bits of the occupancy that fall under the mask, gathered low to
// high) instead of a multiply-and-shift. This is the same "extract the
// relevant occupancy bits, look up a precomputed table" contract the spec
// describes as the PEXT path, just without hardware BMI2.
type sliderEntry struct {
	mask  Bitboard
	table []Bitboard
}

var (
	lanceEntry [2][SquareNum]sliderEntry
	bishopEntry [SquareNum]sliderEntry
	rookEntry   [SquareNum]sliderEntry
)

// pextIndex gathers, low bit first, the bits of occ that fall under mask.
func pextIndex(occ, mask Bitboard) uint64 {
	var idx uint64
	var bit uint
	mask.ForEach(func(sq Square) {
		if occ.IsSet(sq) {
			idx |= 1 << bit
		}
		bit++
	})
	return idx
}

func maskFromDirs(sq Square, dirs []delta) Bitboard {
	var mask Bitboard
	for _, d := range dirs {
		ray := fullRay(sq, d.dFile, d.dRank)
		if len(ray) == 0 {
			continue
		}
		for _, s := range ray[:len(ray)-1] {
			mask = mask.Set(s)
		}
	}
	return mask
}

func buildSliderEntry(sq Square, dirs []delta) sliderEntry {
	mask := maskFromDirs(sq, dirs)
	bits := mask.Squares()
	n := uint(len(bits))
	table := make([]Bitboard, 1<<n)
	for idx := uint64(0); idx < uint64(1)<<n; idx++ {
		var occ Bitboard
		for i, s := range bits {
			if idx&(1<<uint(i)) != 0 {
				occ = occ.Set(s)
			}
		}
		var attack Bitboard
		for _, d := range dirs {
			attack = attack.Or(rayAttack(sq, d.dFile, d.dRank, occ))
		}
		table[idx] = attack
	}
	return sliderEntry{mask: mask, table: table}
}

func initSliderAttacks() {
	for sq := Square(0); sq < SquareNum; sq++ {
		bishopEntry[sq] = buildSliderEntry(sq, bishopDirs)
		rookEntry[sq] = buildSliderEntry(sq, rookDirs)
		lanceEntry[Black][sq] = buildSliderEntry(sq, []delta{{0, -1}})
		lanceEntry[White][sq] = buildSliderEntry(sq, []delta{{0, 1}})
	}
}

func (e sliderEntry) attacks(occ Bitboard) Bitboard {
	return e.table[pextIndex(occ, e.mask)]
}

// BishopAttacks returns the Bishop's attack set from sq given occ.
func BishopAttacks(sq Square, occ Bitboard) Bitboard { return bishopEntry[sq].attacks(occ) }

// RookAttacks returns the Rook's attack set from sq given occ.
func RookAttacks(sq Square, occ Bitboard) Bitboard { return rookEntry[sq].attacks(occ) }

// LanceAttacks returns c's Lance attack set from sq given occ.
func LanceAttacks(c Color, sq Square, occ Bitboard) Bitboard {
	return lanceEntry[c][sq].attacks(occ)
}
