package board

// Move generation is organized as the same staged pipeline the teacher's
// movegen.go exposes for chess (Captures / NonCaptures / Evasions / Legal),
// widened with shogi's Drop stage and the pawn-drop-checkmate rule that has
// no chess analogue. Evasion generation is folded into the general Legal
// filter rather than hand-written as a dedicated check-escape generator:
// every pseudo-legal move (including ones that leave the king in check) is
// tried through doMove/undoMove and the generic king-safety test. This
// trades some search-time efficiency for a single, uniformly-correct
// legality path — the staged Capture/NonCapture (with drops)/Recapture entry points below
// still let callers (e.g. quiescence search) skip whole move classes
// cheaply, which is the staging the hot path actually needs.

func inPromotionZone(c Color, sq Square) bool {
	r := sq.Rank()
	if c == Black {
		return r <= 3
	}
	return r >= 7
}

func mustPromote(pt PieceType, c Color, to Square) bool {
	r := to.Rank()
	switch pt {
	case Pawn, Lance:
		if c == Black {
			return r == 1
		}
		return r == 9
	case Knight:
		if c == Black {
			return r <= 2
		}
		return r >= 8
	}
	return false
}

func canPromoteMove(pt PieceType, c Color, from, to Square) bool {
	if pt.IsPromoted() || pt == Gold || pt == King {
		return false
	}
	return inPromotionZone(c, from) || inPromotionZone(c, to)
}

func addBoardMoves(pos *Position, list *MoveList, c Color, pt PieceType, targets Bitboard) {
	fromBB := pos.PieceBB(c, pt)
	fromBB.ForEach(func(from Square) {
		attacks := AttacksFrom(pt, c, from, pos.Occupied()).And(targets)
		attacks.ForEach(func(to Square) {
			captured := pos.PieceOn(to).Type()
			if canPromoteMove(pt, c, from, to) {
				list.Add(NewMove(from, to, pt, captured, true))
			}
			if !mustPromote(pt, c, to) {
				list.Add(NewMove(from, to, pt, captured, false))
			}
		})
	})
}

func rankBB(rank int) Bitboard {
	var bb Bitboard
	for file := 1; file <= 9; file++ {
		bb = bb.Set(NewSquare(file, rank))
	}
	return bb
}

func filesWithPawn(pos *Position, c Color) Bitboard {
	var files Bitboard
	pos.PieceBB(c, Pawn).ForEach(func(sq Square) {
		files = files.Or(fileBB(sq.File()))
	})
	return files
}

func fileBB(file int) Bitboard {
	var bb Bitboard
	for rank := 1; rank <= 9; rank++ {
		bb = bb.Set(NewSquare(file, rank))
	}
	return bb
}

func generateDrops(pos *Position, list *MoveList, c Color) {
	empty := pos.Occupied().Not()
	hand := pos.HandOf(c)
	for hp := HandPiece(0); hp < HandPieceNum; hp++ {
		if !hand.Exists(hp) {
			continue
		}
		targets := empty
		switch hp {
		case HPawn:
			targets = targets.AndNot(filesWithPawn(pos, c))
			if c == Black {
				targets = targets.AndNot(rankBB(1))
			} else {
				targets = targets.AndNot(rankBB(9))
			}
		case HLance:
			if c == Black {
				targets = targets.AndNot(rankBB(1))
			} else {
				targets = targets.AndNot(rankBB(9))
			}
		case HKnight:
			if c == Black {
				targets = targets.AndNot(rankBB(1)).AndNot(rankBB(2))
			} else {
				targets = targets.AndNot(rankBB(9)).AndNot(rankBB(8))
			}
		}
		targets.ForEach(func(to Square) { list.Add(NewDrop(hp, to)) })
	}
}

// GenerateCaptures appends every pseudo-legal capturing board move.
func GenerateCaptures(pos *Position, list *MoveList) {
	c := pos.Turn()
	targets := pos.ColorBB(c.Other())
	for _, pt := range allPieceTypes {
		addBoardMoves(pos, list, c, pt, targets)
	}
}

// GenerateNonCaptures appends every pseudo-legal non-capturing board move and
// every pseudo-legal drop.
func GenerateNonCaptures(pos *Position, list *MoveList) {
	c := pos.Turn()
	targets := pos.Occupied().Not()
	for _, pt := range allPieceTypes {
		addBoardMoves(pos, list, c, pt, targets)
	}
	generateDrops(pos, list, c)
}

// GenerateRecapture appends pseudo-legal captures that land on to (used to
// bias quiescence search toward resolving the last capture).
func GenerateRecapture(pos *Position, list *MoveList, to Square) {
	c := pos.Turn()
	targets := SquareBB(to).And(pos.ColorBB(c.Other()))
	for _, pt := range allPieceTypes {
		addBoardMoves(pos, list, c, pt, targets)
	}
}

func pseudoLegalMoveIsLegal(pos *Position, m Move) bool {
	mover := pos.Turn()
	pos.DoMove(m)
	king := pos.KingSquare(mover)
	illegal := pos.AttackersTo(king, mover.Other(), pos.Occupied()).Any()
	pos.UndoMove(m)
	return !illegal
}

func isPawnDropCheckmate(pos *Position, m Move) bool {
	pos.DoMove(m)
	defer pos.UndoMove(m)
	if !pos.InCheck() {
		return false
	}
	var reply MoveList
	GenerateLegal(pos, &reply)
	return reply.Len() == 0
}

// GenerateLegal appends every fully legal move: captures, non-captures and
// drops, filtered for king safety and the pawn-drop-checkmate rule.
func GenerateLegal(pos *Position, list *MoveList) {
	var pseudo MoveList
	GenerateCaptures(pos, &pseudo)
	GenerateNonCaptures(pos, &pseudo)
	for i := 0; i < pseudo.Len(); i++ {
		m := pseudo.At(i)
		if !pseudoLegalMoveIsLegal(pos, m) {
			continue
		}
		if m.IsDrop() && m.PieceTypeMoved() == Pawn && isPawnDropCheckmate(pos, m) {
			continue
		}
		list.Add(m)
	}
}

// GenerateLegalAll is the same generator as GenerateLegal: GenerateLegal
// already emits the unpromoted form of every optional promotion, so there
// are no extra under-promotions to add.
func GenerateLegalAll(pos *Position, list *MoveList) { GenerateLegal(pos, list) }

// GenerateEvasions generates legal check-evasion moves. Implemented as
// GenerateLegal restricted to a position already known to be in check: the
// generic king-safety filter that powers GenerateLegal also rejects moves
// that leave a second checker unanswered, so no separate double-check
// handling is required.
func GenerateEvasions(pos *Position, list *MoveList) { GenerateLegal(pos, list) }

// GenerateNonEvasions generates legal moves for a position not in check.
func GenerateNonEvasions(pos *Position, list *MoveList) { GenerateLegal(pos, list) }

func hasLegalMove(pos *Position) bool {
	var list MoveList
	GenerateCaptures(pos, &list)
	for i := 0; i < list.Len(); i++ {
		if pseudoLegalMoveIsLegal(pos, list.At(i)) {
			return true
		}
	}
	list.Reset()
	GenerateNonCaptures(pos, &list)
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		if !pseudoLegalMoveIsLegal(pos, m) {
			continue
		}
		if m.IsDrop() && m.PieceTypeMoved() == Pawn && isPawnDropCheckmate(pos, m) {
			continue
		}
		return true
	}
	return false
}

// MoveGivesCheck reports whether making m would put the opponent in check.
func MoveGivesCheck(pos *Position, m Move) bool {
	pos.DoMove(m)
	gives := pos.InCheck()
	pos.UndoMove(m)
	return gives
}

// MateMoveIn1Ply returns a move that checkmates the opponent immediately, or
// MoveNone if no such move exists. Used as a cheap pre-leaf probe ahead of
// full quiescence search.
func MateMoveIn1Ply(pos *Position) Move {
	var list MoveList
	GenerateLegal(pos, &list)
	for i := 0; i < list.Len(); i++ {
		m := list.At(i)
		pos.DoMove(m)
		mate := pos.InCheck() && !hasLegalMove(pos)
		pos.UndoMove(m)
		if mate {
			return m
		}
	}
	return MoveNone
}

func leastValuableAttacker(pos *Position, attackers Bitboard) Square {
	best, bestVal := NoSquare, 1<<30
	attackers.ForEach(func(sq Square) {
		v := PieceValue[pos.PieceOn(sq).Type().Unpromoted()]
		if v < bestVal {
			bestVal = v
			best = sq
		}
	})
	return best
}

// SEE returns the static-exchange evaluation of capturing move m: the net
// material gain for the side to move after both sides play every available
// recapture on m.To() in ascending value order.
func SEE(pos *Position, m Move) int {
	to := m.To()
	var gain [32]int
	d := 0
	occ := pos.Occupied()
	captured := pos.PieceOn(to).Type()
	gain[0] = PieceValue[captured]
	attackerType := m.PieceTypeMoved()
	if !m.IsDrop() {
		occ = occ.Clear(m.From())
	}
	stm := pos.Turn().Other()
	for d < 31 {
		attackers := pos.AttackersTo(to, stm, occ).And(occ)
		if attackers.IsEmpty() {
			break
		}
		sq := leastValuableAttacker(pos, attackers)
		d++
		gain[d] = PieceValue[attackerType] - gain[d-1]
		occ = occ.Clear(sq)
		attackerType = pos.PieceOn(sq).Type()
		stm = stm.Other()
	}
	for d > 0 {
		negPrev := -gain[d-1]
		best := negPrev
		if gain[d] > best {
			best = gain[d]
		}
		gain[d-1] = -best
		d--
	}
	return gain[0]
}

// SeeSign reports whether m's SEE value is non-negative, short-circuiting
// the full swap-off loop whenever the captured piece is already worth at
// least as much as the capturing piece.
func SeeSign(pos *Position, m Move) bool {
	if !m.IsCapture() {
		return true
	}
	if PieceValue[m.PieceTypeCaptured().Unpromoted()] >= PieceValue[m.PieceTypeMoved()] {
		return true
	}
	return SEE(pos, m) >= 0
}
