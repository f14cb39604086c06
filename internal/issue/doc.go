// Suggestions are free text written by the caller at the point of failure;
// keep them short, imperative, and specific to the resource involved.
package issue
