// Package points maps logical keys used by the dashboard onto the
// external ids understood by the state store.
//
// The mapping is loaded once from YAML and is immutable afterwards:
//
//	points:                         # flat application keys
//	  - key: pvPower
//	    id: inv.0.power
//	    type: number
//	    unit: W
//	scopes:                         # grouped keys, addressed as "<scope>.<key>"
//	  - name: installer
//	    privileged: true
//	    points:
//	      - key: socMin
//	        id: nexowatt.0.installer.socMin
//	        type: number
//	        default: 10
//
// Flat entries register before scoped ones, each in file order. When two
// entries name the same external id the first one wins and the duplicate
// is reported as an Issue.
package points
