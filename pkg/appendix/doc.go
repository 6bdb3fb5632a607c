// Package appendix provides the pediatric appendicitis decision-support
// cascade: one patient observation in, a Diagnosis, Severity and Management
// prediction out, with every inference appended to an audit table.
//
// Quick start:
//
//	c, err := appendix.Open(ctx, appendix.WithModelDir("models/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, _ := c.Infer(ctx, appendix.Observation{
//	    Numeric:     map[string]float64{"Age": 11.2, "CRP": 34},
//	    Categorical: map[string]string{"Sex": "female"},
//	})
//	fmt.Println(res.Diagnosis.Label) // appendicitis
//
// A Client serializes inferences; it is safe to share between goroutines.
package appendix
