// compileinfoprint is imported for the side effect of printing the compileinfo
// to os.StdErr
package compileinfoprint

import "github.com/haswelllab/rnaseqmisc/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
