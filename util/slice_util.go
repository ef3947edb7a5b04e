package util

// DistinctStrings remove duplicated values, keep first-seen order
func DistinctStrings(vs []string) (res []string) {
	if len(vs) == 0 {
		return vs
	}
	m := make(map[string]struct{}, len(vs))
	res = vs[:0]
	for _, v := range vs {
		if _, ok := m[v]; ok {
			continue
		}
		m[v] = struct{}{}
		res = append(res, v)
	}
	return res
}
