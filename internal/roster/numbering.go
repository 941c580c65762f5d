package roster

import (
	"sort"

	"schoolboard/internal/school"
)

// Renumber reassigns grNo densely from 1 in current grNo order and rollNo
// densely from 1 within each class in current rollNo order. It returns only
// the students whose numbers changed, carrying their new numbers; the input
// slice is not modified.
func Renumber(students []school.Student) []school.Student {
	all := make([]school.Student, len(students))
	copy(all, students)

	sort.SliceStable(all, func(i, j int) bool { return all[i].GRNo < all[j].GRNo })
	next := make([]school.Student, len(all))
	for i, s := range all {
		s.GRNo = i + 1
		next[i] = s
	}

	byClass := map[string][]int{}
	for i, s := range next {
		byClass[s.Class] = append(byClass[s.Class], i)
	}
	for _, idx := range byClass {
		sort.SliceStable(idx, func(a, b int) bool { return next[idx[a]].RollNo < next[idx[b]].RollNo })
		for pos, i := range idx {
			next[i].RollNo = pos + 1
		}
	}

	before := make(map[string]school.Student, len(students))
	for _, s := range students {
		before[s.ID] = s
	}
	var changed []school.Student
	for _, s := range next {
		old := before[s.ID]
		if old.GRNo != s.GRNo || old.RollNo != s.RollNo {
			changed = append(changed, s)
		}
	}
	return changed
}

// nextNumbers returns the grNo and rollNo a new student in class receives.
func nextNumbers(students []school.Student, class string) (grNo, rollNo int) {
	maxGR, inClass := 0, 0
	for _, s := range students {
		if s.GRNo > maxGR {
			maxGR = s.GRNo
		}
		if s.Class == class {
			inClass++
		}
	}
	return maxGR + 1, inClass + 1
}

// SortByGRNo orders students by enrollment number.
func SortByGRNo(students []school.Student) {
	sort.SliceStable(students, func(i, j int) bool { return students[i].GRNo < students[j].GRNo })
}

// SortByRollNo orders students by roll number.
func SortByRollNo(students []school.Student) {
	sort.SliceStable(students, func(i, j int) bool { return students[i].RollNo < students[j].RollNo })
}
