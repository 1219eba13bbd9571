package facematch

import "github.com/kozaktomas/facecam/internal/embedding"

// Track pairs each new face with the best overlapping face from the previous
// processed frame. Each previous face continues at most one track; unmatched
// new faces are reported as appeared and unmatched previous faces are
// returned separately as lost.
func Track(prev []TrackedFace, boxes []embedding.BBox, results []Result, iouThreshold float64) (tracked, lost []TrackedFace) {
	used := make([]bool, len(prev))
	tracked = make([]TrackedFace, len(boxes))

	for i, box := range boxes {
		var res Result
		if i < len(results) {
			res = results[i]
		} else {
			res = Unknown()
		}

		best := -1
		bestIoU := 0.0
		for j := range prev {
			if used[j] {
				continue
			}
			iou := ComputeIoU(box, prev[j].Box)
			if iou > bestIoU {
				bestIoU = iou
				best = j
			}
		}

		action := ActionAppeared
		if best >= 0 && bestIoU >= iouThreshold {
			used[best] = true
			if prev[best].Result.Label == res.Label {
				action = ActionSame
			} else {
				action = ActionChanged
			}
		}
		tracked[i] = TrackedFace{Box: box, Result: res, Action: action}
	}

	for j, p := range prev {
		if !used[j] {
			lost = append(lost, TrackedFace{Box: p.Box, Result: p.Result, Action: ActionLost})
		}
	}
	return tracked, lost
}
