package admin

import (
	"net/http"
	"strings"

	"github.com/danmuck/edgeparams/internal/params"
	"github.com/gin-gonic/gin"
)

type rangeView struct {
	Min  any `json:"min"`
	Max  any `json:"max"`
	Step any `json:"step"`
}

type descriptorView struct {
	Type                  string     `json:"type"`
	Description           string     `json:"description,omitempty"`
	AdditionalConstraints string     `json:"additional_constraints,omitempty"`
	ReadOnly              bool       `json:"read_only"`
	DynamicTyping         bool       `json:"dynamic_typing"`
	IntegerRange          *rangeView `json:"integer_range,omitempty"`
	FloatRange            *rangeView `json:"float_range,omitempty"`
}

type paramView struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Value      any            `json:"value"`
	Descriptor descriptorView `json:"descriptor"`
}

func viewDescriptor(d params.Descriptor) descriptorView {
	v := descriptorView{
		Type:                  d.Type.String(),
		Description:           d.Description,
		AdditionalConstraints: d.AdditionalConstraints,
		ReadOnly:              d.ReadOnly,
		DynamicTyping:         d.DynamicTyping,
	}
	if r := d.IntRange; r != nil {
		v.IntegerRange = &rangeView{Min: r.Min, Max: r.Max, Step: r.Step}
	}
	if r := d.FloatRange; r != nil {
		v.FloatRange = &rangeView{Min: r.Min, Max: r.Max, Step: r.Step}
	}
	return v
}

// listParams lists one level below ?prefix=, the root when omitted.
func (s *Server) listParams(c *gin.Context) {
	prefix := strings.Trim(c.Query("prefix"), params.Separator)
	names := make([]string, 0)
	prefixes := make([]string, 0)
	s.opts.Provider.ListParameters(prefix, func(name string) bool {
		names = append(names, name)
		return true
	})
	s.opts.Provider.ListPrefixes(prefix, func(p string) bool {
		prefixes = append(prefixes, p)
		return true
	})
	c.JSON(http.StatusOK, gin.H{
		"prefix":     prefix,
		"parameters": names,
		"prefixes":   prefixes,
	})
}

func (s *Server) getParam(c *gin.Context) {
	name := strings.Trim(c.Param("name"), params.Separator)
	ref, ok := s.opts.Provider.Resolve(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": params.ErrNotFound.Error(), "name": name})
		return
	}
	v := s.opts.Provider.Get(ref)
	view := paramView{
		Name:       name,
		Type:       s.opts.Provider.Type(ref).String(),
		Descriptor: viewDescriptor(s.opts.Provider.Describe(ref)),
	}
	if !v.IsDeferred() {
		view.Value = v.Any()
	}
	c.JSON(http.StatusOK, view)
}
